package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"vatsuok/common"
	"vatsuok/errs"
	"vatsuok/metrics"
	"vatsuok/models"
)

const sessionUserKey = "user_id"

// bcrypt work factor; tests lower it.
var hashCost = 14

type AuthModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewAuthModule(db *gorm.DB, log zerolog.Logger) *AuthModule {
	return &AuthModule{db: db, log: log}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/signin", a.signinPage)
	router.POST("/signin", a.signinPost)
	router.GET("/signup", a.signupPage)
	router.POST("/signup", a.signupPost)
	router.GET("/logout", RequireLogin, a.logout)
}

// Register creates an account. The very first account is approved and made
// admin; every later one waits for approval.
func (a *AuthModule) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errs.ErrMissingField
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user models.User
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// sqlite transactions begin immediate and so already serialise
		// writers; postgres needs the table locked so two first
		// registrations cannot both see zero users.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("LOCK TABLE users IN EXCLUSIVE MODE").Error; err != nil {
				return err
			}
		}

		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return errs.ErrDuplicateUsername
		}

		var total int64
		if err := tx.Model(&models.User{}).Count(&total).Error; err != nil {
			return err
		}

		first := total == 0
		user = models.User{
			Username: username,
			Password: passwordHash,
			Approved: first,
			IsAdmin:  first,
		}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrDuplicateUsername
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	role := "member"
	if user.IsAdmin {
		role = "admin"
	}
	metrics.Registrations.WithLabelValues(role).Inc()
	a.log.Info().Int("user_id", user.ID).Str("username", user.Username).Str("role", role).Msg("user registered")

	return &user, nil
}

// Authenticate checks credentials. Correct credentials on an unapproved
// account still fail, with ErrPendingApproval.
func (a *AuthModule) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := a.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !checkPasswordHash(password, user.Password) {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, errs.ErrInvalidCredentials
	}

	if !user.Approved {
		metrics.Logins.WithLabelValues("pending").Inc()
		return nil, errs.ErrPendingApproval
	}

	metrics.Logins.WithLabelValues("success").Inc()
	return &user, nil
}

func (a *AuthModule) signinPage(c *gin.Context) {
	if user := common.Principal(c); user != nil {
		c.Redirect(http.StatusFound, landingPage(user))
		return
	}

	common.Render(c, http.StatusOK, "signin.html", gin.H{"title": "Sign In"})
}

func (a *AuthModule) signinPost(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := a.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidCredentials) || errors.Is(err, errs.ErrPendingApproval) {
			category := "danger"
			if errors.Is(err, errs.ErrPendingApproval) {
				category = "warning"
			}
			common.Render(c, http.StatusUnauthorized, "signin.html", gin.H{
				"title":         "Sign In",
				"error":         errs.Notice(err),
				"errorCategory": category,
				"username":      username,
			})
			return
		}
		common.Fail(c, a.log, err)
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		common.Fail(c, a.log, fmt.Errorf("save session: %w", err))
		return
	}

	c.Redirect(http.StatusFound, landingPage(user))
}

func (a *AuthModule) signupPage(c *gin.Context) {
	if user := common.Principal(c); user != nil {
		c.Redirect(http.StatusFound, landingPage(user))
		return
	}

	common.Render(c, http.StatusOK, "signup.html", gin.H{"title": "Sign Up"})
}

func (a *AuthModule) signupPost(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := a.Register(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, errs.ErrDuplicateUsername) || errors.Is(err, errs.ErrMissingField) {
			common.Render(c, http.StatusBadRequest, "signup.html", gin.H{
				"title":    "Sign Up",
				"error":    errs.Notice(err),
				"username": username,
			})
			return
		}
		common.Fail(c, a.log, err)
		return
	}

	if user.IsAdmin {
		common.FlashRedirect(c, "success", "Account created successfully. You are the admin.", "/signin")
		return
	}
	common.FlashRedirect(c, "info", "Account created successfully. Please wait for admin approval.", "/signin")
}

func (a *AuthModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, "/")
}

func landingPage(user *models.User) string {
	if user.IsAdmin {
		return "/admin"
	}
	return "/blogs"
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
