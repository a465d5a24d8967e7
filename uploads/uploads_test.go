package uploads

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vatsuok/errs"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		original string
		expected string
	}{
		{"photo.PNG", "00000000000000ff.png"},
		{"../../etc/passwd", "00000000000000ff"},
		{"weird.j$p#g", "00000000000000ff.jpg"},
		{"archive.tar.gz", "00000000000000ff.gz"},
		{"noext", "00000000000000ff"},
	}

	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			assert.Equal(t, tt.expected, FileName(0xff, tt.original))
		})
	}
}

func TestWrite_ContentAddressed(t *testing.T) {
	store := NewStore(t.TempDir(), 0)

	first, err := store.Write(strings.NewReader("image-bytes"), "cat.png")
	require.NoError(t, err)
	second, err := store.Write(strings.NewReader("image-bytes"), "other-name.png")
	require.NoError(t, err)
	third, err := store.Write(strings.NewReader("different"), "cat.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, third)
	assert.Equal(t, FileName(xxhash.Sum64String("image-bytes"), "cat.png"), first)

	data, err := os.ReadFile(filepath.Join(store.Dir(), first))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestWrite_HashCollisionKeepsBothFiles(t *testing.T) {
	store := NewStore(t.TempDir(), 0)

	// squat the name "new-bytes" hashes to with different content
	taken := FileName(xxhash.Sum64String("new-bytes"), "a.png")
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), taken), []byte("old-bytes"), 0644))

	name, err := store.Write(strings.NewReader("new-bytes"), "a.png")
	require.NoError(t, err)
	assert.NotEqual(t, taken, name)
	assert.Equal(t, numberedName(xxhash.Sum64String("new-bytes"), 1, "a.png"), name)

	old, err := os.ReadFile(filepath.Join(store.Dir(), taken))
	require.NoError(t, err)
	assert.Equal(t, "old-bytes", string(old))
	fresh, err := os.ReadFile(filepath.Join(store.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, "new-bytes", string(fresh))

	again, err := store.Write(strings.NewReader("new-bytes"), "b.png")
	require.NoError(t, err)
	assert.Equal(t, name, again)
}

func TestWrite_NoTempFilesLeft(t *testing.T) {
	store := NewStore(t.TempDir(), 4)

	_, err := store.Write(strings.NewReader("too many bytes"), "big.png")
	assert.ErrorIs(t, err, errs.ErrUploadTooLarge)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSave_MultipartFile(t *testing.T) {
	store := NewStore(t.TempDir(), 1<<20)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "Header Image.JPG")
	require.NoError(t, err)
	part.Write([]byte("jpeg-data"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	fh := req.MultipartForm.File["image"][0]

	name, err := store.Save(fh)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".jpg"))
	assert.FileExists(t, filepath.Join(store.Dir(), name))
}
