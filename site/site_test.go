package site

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vatsuok/blog"
	"vatsuok/models"
	"vatsuok/project"
	"vatsuok/testenv"
)

func setupSite(t *testing.T) (*gin.Engine, *gorm.DB) {
	db := testenv.DB(t)
	router := testenv.Router()
	posts := blog.NewBlogModule(db, zerolog.Nop(), nil, nil)
	projects := project.NewProjectModule(db, zerolog.Nop(), nil)
	NewSiteModule(db, zerolog.Nop(), "https://vatsuok.dev/", posts, projects).RegisterRoutes(router)
	return router, db
}

func TestHome(t *testing.T) {
	router, db := setupSite(t)
	author := testenv.CreateUser(t, db, "admin", true, true)
	for i := 0; i < 4; i++ {
		testenv.CreatePost(t, db, &models.Post{
			Title: fmt.Sprintf("Post %d", i), AuthorID: author.ID, Content: "x",
			PostDate: time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, db.Create(&models.Project{Title: "Starred", Description: "d", Technologies: "Go", Featured: true}).Error)
	require.NoError(t, db.Create(&models.Project{Title: "Hidden", Description: "d", Technologies: "Go"}).Error)

	w := testenv.Get(router, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Post 0")
	assert.Contains(t, body, "Post 2")
	assert.NotContains(t, body, "Post 3")
	assert.Contains(t, body, "Starred")
	assert.NotContains(t, body, "Hidden")
}

func TestStaticPages(t *testing.T) {
	router, _ := setupSite(t)

	for _, path := range []string{"/about", "/services"} {
		w := testenv.Get(router, path)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), "Test Site", path)
	}
}

func TestSitemap(t *testing.T) {
	router, db := setupSite(t)
	author := testenv.CreateUser(t, db, "admin", true, true)
	post := testenv.CreatePost(t, db, &models.Post{
		Title: "Mapped", AuthorID: author.ID, Content: "x",
		PostDate: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	tool := &models.Project{Title: "Tool", Description: "d", Technologies: "Go"}
	require.NoError(t, db.Create(tool).Error)

	w := testenv.Get(router, "/sitemap.xml")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "<loc>https://vatsuok.dev/</loc>")
	assert.Contains(t, body, "<loc>https://vatsuok.dev/blogs</loc>")
	assert.Contains(t, body, fmt.Sprintf("<loc>https://vatsuok.dev/post/%d</loc>", post.ID))
	assert.Contains(t, body, "<lastmod>2024-03-01T12:00:00Z</lastmod>")
	assert.Contains(t, body, fmt.Sprintf("<loc>https://vatsuok.dev/project/%d</loc>", tool.ID))
}

func TestHealthz(t *testing.T) {
	router, db := setupSite(t)

	w := testenv.Get(router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	sqlDB, _ := db.DB()
	sqlDB.Close()

	w = testenv.Get(router, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
