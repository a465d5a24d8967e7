package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vatsuok/analytics"
	"vatsuok/auth"
	"vatsuok/common"
	"vatsuok/errs"
	"vatsuok/models"
)

const (
	statsDays    = 30
	topPostLimit = 5
)

// UserModerator changes accounts on behalf of an admin.
type UserModerator interface {
	Approve(ctx context.Context, actor *models.User, id int) (*models.User, error)
	ToggleAdmin(ctx context.Context, actor *models.User, id int) (*models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, id int) (*models.User, error)
}

// VisitStats summarises post traffic.
type VisitStats interface {
	VisitsByDay(ctx context.Context, days int) ([]analytics.DayVisits, error)
	TopPosts(ctx context.Context, days, limit int) ([]analytics.PostVisits, error)
}

type AdminModule struct {
	db     *gorm.DB
	log    zerolog.Logger
	users  UserModerator
	visits VisitStats
}

type Dashboard struct {
	TotalUsers     int64
	PendingUsers   int64
	TotalContacts  int64
	UnreadContacts int64
	Users          []models.User
	Contacts       []models.Contact
	VisitsByDay    []analytics.DayVisits
	TopPosts       []analytics.PostVisits
}

// NewAdminModule wires the dashboard. visits may be nil.
func NewAdminModule(db *gorm.DB, log zerolog.Logger, users UserModerator, visits VisitStats) *AdminModule {
	return &AdminModule{db: db, log: log, users: users, visits: visits}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/admin", auth.RequireAdmin("/blogs"), a.dashboard)

	moderation := router.Group("/", auth.RequireAdmin("/"))
	{
		moderation.GET("/approve_user/:id", a.approveUser)
		moderation.GET("/toggle_admin/:id", a.toggleAdmin)
		moderation.GET("/delete_user/:id", a.deleteUser)
	}
}

// Dashboard gathers the admin overview. It never writes.
func (a *AdminModule) Dashboard(ctx context.Context, actor *models.User) (*Dashboard, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, errs.ErrAccessDenied
	}

	d := &Dashboard{
		Users:       []models.User{},
		Contacts:    []models.Contact{},
		VisitsByDay: []analytics.DayVisits{},
		TopPosts:    []analytics.PostVisits{},
	}
	db := a.db.WithContext(ctx)

	if err := db.Order("id ASC").Find(&d.Users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if err := db.Order("submitted_at DESC").Find(&d.Contacts).Error; err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if err := db.Model(&models.User{}).Where("approved = ?", false).Count(&d.PendingUsers).Error; err != nil {
		return nil, fmt.Errorf("count pending users: %w", err)
	}
	if err := db.Model(&models.Contact{}).Where("is_read = ?", false).Count(&d.UnreadContacts).Error; err != nil {
		return nil, fmt.Errorf("count unread contacts: %w", err)
	}
	d.TotalUsers = int64(len(d.Users))
	d.TotalContacts = int64(len(d.Contacts))

	if a.visits != nil {
		var err error
		if d.VisitsByDay, err = a.visits.VisitsByDay(ctx, statsDays); err != nil {
			return nil, fmt.Errorf("visits by day: %w", err)
		}
		if d.TopPosts, err = a.visits.TopPosts(ctx, statsDays, topPostLimit); err != nil {
			return nil, fmt.Errorf("top posts: %w", err)
		}
	}

	return d, nil
}

func (a *AdminModule) dashboard(c *gin.Context) {
	d, err := a.Dashboard(c.Request.Context(), common.Principal(c))
	if err != nil {
		if errors.Is(err, errs.ErrAccessDenied) {
			common.Deny(c, "/blogs")
			return
		}
		common.Fail(c, a.log, err)
		return
	}

	common.Render(c, http.StatusOK, "admin.html", gin.H{
		"title":     "Admin",
		"dashboard": d,
	})
}

func (a *AdminModule) approveUser(c *gin.Context) {
	a.moderate(c, a.users.Approve, func(u *models.User) string {
		return fmt.Sprintf("User %s has been approved.", u.Username)
	})
}

func (a *AdminModule) toggleAdmin(c *gin.Context) {
	a.moderate(c, a.users.ToggleAdmin, func(u *models.User) string {
		action := "removed from admin"
		if u.IsAdmin {
			action = "promoted to admin"
		}
		return fmt.Sprintf("User %s has been %s.", u.Username, action)
	})
}

func (a *AdminModule) deleteUser(c *gin.Context) {
	a.moderate(c, a.users.DeleteUser, func(u *models.User) string {
		return fmt.Sprintf("User %s has been deleted.", u.Username)
	})
}

type userAction func(ctx context.Context, actor *models.User, id int) (*models.User, error)

// moderate runs action on the :id user and reports back on the dashboard.
func (a *AdminModule) moderate(c *gin.Context, action userAction, done func(*models.User) string) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	user, err := action(c.Request.Context(), common.Principal(c), id)
	switch {
	case err == nil:
		common.FlashRedirect(c, "success", done(user), "/admin")
	case errors.Is(err, errs.ErrAccessDenied):
		common.Deny(c, "/")
	case errors.Is(err, errs.ErrSelfDeletion), errors.Is(err, errs.ErrHasDependentContent):
		common.FlashRedirect(c, "danger", errs.Notice(err), "/admin")
	default:
		common.Fail(c, a.log, err)
	}
}
