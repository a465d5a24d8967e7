package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"vatsuok/common"
	"vatsuok/config"
	"vatsuok/database"
	"vatsuok/errs"
	"vatsuok/models"
	"vatsuok/testenv"
)

func TestMain(m *testing.M) {
	hashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func setupAuth(t *testing.T) (*AuthModule, *gorm.DB, *gin.Engine) {
	db := testenv.DB(t)
	authModule := NewAuthModule(db, zerolog.Nop())
	router := testenv.Router(authModule.Principal)
	authModule.RegisterRoutes(router)
	return authModule, db, router
}

func credentials(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

func TestRegister_FirstUserIsApprovedAdmin(t *testing.T) {
	authModule, _, _ := setupAuth(t)
	ctx := context.Background()

	first, err := authModule.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, first.Approved)
	assert.True(t, first.IsAdmin)
	assert.NotEqual(t, "secret", first.Password)

	second, err := authModule.Register(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.False(t, second.Approved)
	assert.False(t, second.IsAdmin)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	authModule, db, _ := setupAuth(t)
	ctx := context.Background()

	_, err := authModule.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = authModule.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, errs.ErrDuplicateUsername)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRegister_Concurrent(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", DBDSN: filepath.Join(t.TempDir(), "signup.db")}
	db, err := common.ConnectDb(cfg, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))

	authModule := NewAuthModule(db, zerolog.Nop())

	const signups = 20
	var wg sync.WaitGroup
	failures := make(chan error, signups)
	for i := 0; i < signups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := authModule.Register(context.Background(), fmt.Sprintf("user%d", i), "secret"); err != nil {
				failures <- err
			}
		}(i)
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Errorf("register failed: %v", err)
	}

	var total, admins int64
	require.NoError(t, db.Model(&models.User{}).Count(&total).Error)
	require.NoError(t, db.Model(&models.User{}).Where("is_admin = ?", true).Count(&admins).Error)
	assert.Equal(t, int64(signups), total)
	assert.Equal(t, int64(1), admins)
}

func TestRegister_MissingField(t *testing.T) {
	authModule, _, _ := setupAuth(t)

	_, err := authModule.Register(context.Background(), "   ", "secret")
	assert.ErrorIs(t, err, errs.ErrMissingField)

	_, err = authModule.Register(context.Background(), "alice", "")
	assert.ErrorIs(t, err, errs.ErrMissingField)
}

func TestAuthenticate(t *testing.T) {
	authModule, db, _ := setupAuth(t)
	testenv.CreateUser(t, db, "admin", true, true)
	testenv.CreateUser(t, db, "waiting", false, false)
	ctx := context.Background()

	user, err := authModule.Authenticate(ctx, "admin", "password")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)

	_, err = authModule.Authenticate(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, err = authModule.Authenticate(ctx, "nobody", "password")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, err = authModule.Authenticate(ctx, "waiting", "password")
	assert.ErrorIs(t, err, errs.ErrPendingApproval)

	// the pending notice is only given for the right password
	_, err = authModule.Authenticate(ctx, "waiting", "wrong")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestSigninPost_RoutesByRole(t *testing.T) {
	_, db, router := setupAuth(t)
	testenv.CreateUser(t, db, "admin", true, true)
	testenv.CreateUser(t, db, "reader", true, false)

	w := testenv.PostForm(router, "/signin", credentials("admin", "password"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin", w.Header().Get("Location"))

	w = testenv.PostForm(router, "/signin", credentials("reader", "password"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/blogs", w.Header().Get("Location"))
}

func TestSigninPost_Failures(t *testing.T) {
	_, db, router := setupAuth(t)
	testenv.CreateUser(t, db, "waiting", false, false)

	w := testenv.PostForm(router, "/signin", credentials("waiting", "password"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Your account is pending approval.")

	w = testenv.PostForm(router, "/signin", credentials("waiting", "nope"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Login Unsuccessful. Please check username and password")
}

func TestSignupPost(t *testing.T) {
	_, db, router := setupAuth(t)

	w := testenv.PostForm(router, "/signup", credentials("alice", "secret"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/signin", w.Header().Get("Location"))

	page := testenv.Follow(router, w)
	assert.Contains(t, page.Body.String(), "You are the admin.")

	w = testenv.PostForm(router, "/signup", credentials("alice", "again"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLogout(t *testing.T) {
	_, db, router := setupAuth(t)
	testenv.CreateUser(t, db, "admin", true, true)

	w := testenv.Get(router, "/logout")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/signin", w.Header().Get("Location"))

	login := testenv.PostForm(router, "/signin", credentials("admin", "password"))
	w = testenv.Get(router, "/logout", login.Result().Cookies()...)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestApprovalFlow(t *testing.T) {
	authModule, _, router := setupAuth(t)

	testenv.PostForm(router, "/signup", credentials("alice", "secret"))
	testenv.PostForm(router, "/signup", credentials("bob", "secret"))

	w := testenv.PostForm(router, "/signin", credentials("bob", "secret"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	alice, err := authModule.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)

	var bob models.User
	require.NoError(t, authModule.db.Where("username = ?", "bob").First(&bob).Error)

	_, err = authModule.Approve(context.Background(), alice, bob.ID)
	require.NoError(t, err)

	w = testenv.PostForm(router, "/signin", credentials("bob", "secret"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/blogs", w.Header().Get("Location"))
}

func TestPrincipal_DropsRevokedSession(t *testing.T) {
	_, db, router := setupAuth(t)
	user := testenv.CreateUser(t, db, "reader", true, false)

	login := testenv.PostForm(router, "/signin", credentials("reader", "password"))
	require.Equal(t, http.StatusFound, login.Code)
	cookies := login.Result().Cookies()

	// signed in users are sent away from the sign-in page
	w := testenv.Get(router, "/signin", cookies...)
	assert.Equal(t, http.StatusFound, w.Code)

	db.Model(user).Update("approved", false)

	w = testenv.Get(router, "/signin", cookies...)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	db := testenv.DB(t)
	reader := testenv.CreateUser(t, db, "reader", true, false)
	admin := testenv.CreateUser(t, db, "admin", true, true)

	handler := func(c *gin.Context) { c.String(http.StatusOK, "secret area") }

	anonymous := testenv.Router()
	anonymous.GET("/area", RequireAdmin("/blogs"), handler)
	w := testenv.Get(anonymous, "/area")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/signin", w.Header().Get("Location"))

	member := testenv.Router(testenv.ActingAs(reader))
	member.GET("/area", RequireAdmin("/blogs"), handler)
	w = testenv.Get(member, "/area")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/blogs", w.Header().Get("Location"))
	assert.NotContains(t, w.Body.String(), "secret area")
	assert.NotEmpty(t, w.Result().Cookies(), "access denied notice is stored in the session")

	owner := testenv.Router(testenv.ActingAs(admin))
	owner.GET("/area", RequireAdmin("/blogs"), handler)
	w = testenv.Get(owner, "/area")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "secret area", w.Body.String())
}

func TestDeleteUser(t *testing.T) {
	authModule, db, _ := setupAuth(t)
	admin := testenv.CreateUser(t, db, "admin", true, true)
	reader := testenv.CreateUser(t, db, "reader", true, false)
	author := testenv.CreateUser(t, db, "author", true, true)
	testenv.CreatePost(t, db, &models.Post{Title: "Hello", AuthorID: author.ID, Content: "hi"})
	ctx := context.Background()

	_, err := authModule.DeleteUser(ctx, reader, admin.ID)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)

	_, err = authModule.DeleteUser(ctx, admin, admin.ID)
	assert.ErrorIs(t, err, errs.ErrSelfDeletion)

	_, err = authModule.DeleteUser(ctx, admin, 9999)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = authModule.DeleteUser(ctx, admin, author.ID)
	assert.ErrorIs(t, err, errs.ErrHasDependentContent)

	deleted, err := authModule.DeleteUser(ctx, admin, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, "reader", deleted.Username)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestToggleAdmin(t *testing.T) {
	authModule, db, _ := setupAuth(t)
	admin := testenv.CreateUser(t, db, "admin", true, true)
	reader := testenv.CreateUser(t, db, "reader", true, false)
	ctx := context.Background()

	_, err := authModule.ToggleAdmin(ctx, reader, admin.ID)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)

	_, err = authModule.ToggleAdmin(ctx, admin, 4242)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = authModule.ToggleAdmin(ctx, admin, reader.ID)
	require.NoError(t, err)

	var stored models.User
	db.First(&stored, reader.ID)
	assert.True(t, stored.IsAdmin)

	_, err = authModule.ToggleAdmin(ctx, admin, reader.ID)
	require.NoError(t, err)
	db.First(&stored, reader.ID)
	assert.False(t, stored.IsAdmin)
}
