package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"vatsuok/errs"
	"vatsuok/metrics"
)

// Store keeps uploaded images on local disk under content addressed names.
// Re-uploading the same bytes is a no-op. A different file whose hash is
// already taken gets a numbered name instead of overwriting it.
type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

func (s *Store) Dir() string {
	return s.dir
}

// Save stores the file and returns the name it was stored under.
func (s *Store) Save(fh *multipart.FileHeader) (string, error) {
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return "", errs.ErrUploadTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	return s.Write(f, fh.Filename)
}

// Write stores the content of r using the extension of originalName.
func (s *Store) Write(r io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}

	hasher := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", errs.ErrUploadTooLarge
	}

	name, err := s.place(tmp.Name(), hasher.Sum64(), originalName)
	if err != nil {
		return "", err
	}

	metrics.Uploads.Inc()
	return name, nil
}

const maxCollisions = 100

// place moves the temp file to its content addressed name, or to the first
// free numbered variant when the name already holds other bytes.
func (s *Store) place(tmpPath string, sum uint64, originalName string) (string, error) {
	for n := 0; n < maxCollisions; n++ {
		name := FileName(sum, originalName)
		if n > 0 {
			name = numberedName(sum, n, originalName)
		}
		dst := filepath.Join(s.dir, name)

		same, err := sameContent(tmpPath, dst)
		if errors.Is(err, os.ErrNotExist) {
			if err := os.Rename(tmpPath, dst); err != nil {
				return "", fmt.Errorf("store upload: %w", err)
			}
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("compare upload: %w", err)
		}
		if same {
			return name, nil
		}
	}
	return "", fmt.Errorf("store upload: no free name for hash %016x", sum)
}

// sameContent reports whether the two files hold the same bytes. A missing
// b is reported as os.ErrNotExist.
func sameContent(a, b string) (bool, error) {
	existing, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	fresh, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	return bytes.Equal(fresh, existing), nil
}

// FileName builds the stored name from the content hash and a sanitised
// extension of the original filename.
func FileName(sum uint64, originalName string) string {
	return fmt.Sprintf("%016x%s", sum, sanitizeExt(filepath.Ext(originalName)))
}

func numberedName(sum uint64, n int, originalName string) string {
	return fmt.Sprintf("%016x-%d%s", sum, n, sanitizeExt(filepath.Ext(originalName)))
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, ext)
	if clean == "" {
		return ""
	}
	if len(clean) > 8 {
		clean = clean[:8]
	}
	return "." + clean
}
