// Package testenv builds the throwaway database, router and users the module
// tests share.
package testenv

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vatsuok/common"
	"vatsuok/database"
	"vatsuok/models"
	"vatsuok/views"
)

// DB opens a migrated in-memory sqlite database. A single connection keeps
// every query on the same in-memory database.
func DB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Router returns a gin engine with cookie sessions and the site templates,
// running middleware in order before any route.
func Router(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", store))
	router.Use(middleware...)
	views.Load(router, "Test Site")
	return router
}

// ActingAs makes user the principal of every request.
func ActingAs(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user != nil {
			common.SetPrincipal(c, user)
		}
		c.Next()
	}
}

// CreateUser stores a user whose password is "password".
func CreateUser(t testing.TB, db *gorm.DB, username string, approved, admin bool) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := &models.User{
		Username: username,
		Password: string(hash),
		Approved: approved,
		IsAdmin:  admin,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func CreatePost(t testing.TB, db *gorm.DB, post *models.Post) *models.Post {
	t.Helper()
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("create post %s: %v", post.Title, err)
	}
	return post
}

// Get performs a GET carrying cookies.
func Get(router http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// PostForm submits form values as application/x-www-form-urlencoded.
func PostForm(router http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// Follow issues a GET to the redirect target of w with the cookies it set.
func Follow(router http.Handler, w *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	return Get(router, w.Header().Get("Location"), w.Result().Cookies()...)
}
