package contact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vatsuok/auth"
	"vatsuok/common"
	"vatsuok/errs"
	"vatsuok/metrics"
	"vatsuok/models"
)

const thankYou = "Thank you for your message! I'll get back to you soon."

// Notifier is told about every stored message.
type Notifier interface {
	NotifyContact(ctx context.Context, contact models.Contact) error
}

type ContactModule struct {
	db       *gorm.DB
	log      zerolog.Logger
	notifier Notifier
}

type ContactInput struct {
	Name    string `form:"name" json:"name" binding:"required"`
	Email   string `form:"email" json:"email" binding:"required"`
	Subject string `form:"subject" json:"subject" binding:"required"`
	Message string `form:"message" json:"message" binding:"required"`
}

// NewContactModule wires the inbox. notifier may be nil when mail is not
// configured.
func NewContactModule(db *gorm.DB, log zerolog.Logger, notifier Notifier) *ContactModule {
	return &ContactModule{db: db, log: log, notifier: notifier}
}

func (m *ContactModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/contact", m.contactPage)
	router.POST("/contact", m.submit)

	admin := router.Group("/", auth.RequireAdmin("/"))
	{
		admin.GET("/mark_contact_read/:id", m.markRead)
		admin.GET("/mark_contact_responded/:id", m.markResponded)
		admin.GET("/delete_contact/:id", m.delete)
	}
}

// Submit stores a visitor message. Notification failures are logged only.
func (m *ContactModule) Submit(ctx context.Context, in ContactInput) (*models.Contact, error) {
	contact := models.Contact{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}
	if contact.Name == "" || contact.Email == "" || contact.Subject == "" || contact.Message == "" {
		return nil, errs.ErrMissingField
	}

	if err := m.db.WithContext(ctx).Create(&contact).Error; err != nil {
		return nil, fmt.Errorf("store contact: %w", err)
	}
	metrics.ContactSubmissions.Inc()
	m.log.Info().Int("contact_id", contact.ID).Str("subject", contact.Subject).Msg("contact message received")

	if m.notifier != nil {
		if err := m.notifier.NotifyContact(ctx, contact); err != nil {
			m.log.Warn().Err(err).Int("contact_id", contact.ID).Msg("contact notification failed")
		}
	}

	return &contact, nil
}

func (m *ContactModule) MarkRead(ctx context.Context, actor *models.User, id int) error {
	return m.setFlag(ctx, actor, id, "is_read")
}

func (m *ContactModule) MarkResponded(ctx context.Context, actor *models.User, id int) error {
	return m.setFlag(ctx, actor, id, "is_responded")
}

func (m *ContactModule) Delete(ctx context.Context, actor *models.User, id int) error {
	if actor == nil || !actor.IsAdmin {
		return errs.ErrAccessDenied
	}

	res := m.db.WithContext(ctx).Delete(&models.Contact{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete contact %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("contact %d: %w", id, errs.ErrNotFound)
	}

	m.log.Info().Int("contact_id", id).Int("by", actor.ID).Msg("contact deleted")
	return nil
}

func (m *ContactModule) setFlag(ctx context.Context, actor *models.User, id int, column string) error {
	if actor == nil || !actor.IsAdmin {
		return errs.ErrAccessDenied
	}

	// RowsAffected is 0 for a flag that is already set, so look it up first
	var contact models.Contact
	err := m.db.WithContext(ctx).First(&contact, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("contact %d: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if err := m.db.WithContext(ctx).Model(&contact).Update(column, true).Error; err != nil {
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	return nil
}

func (m *ContactModule) contactPage(c *gin.Context) {
	common.Render(c, http.StatusOK, "contact.html", gin.H{
		"title": "Contact",
		"form":  ContactInput{},
	})
}

func (m *ContactModule) submit(c *gin.Context) {
	var in ContactInput
	if err := c.ShouldBind(&in); err != nil {
		m.rejectSubmission(c, http.StatusBadRequest, in, errs.ErrMissingField)
		return
	}

	if _, err := m.Submit(c.Request.Context(), in); err != nil {
		if errors.Is(err, errs.ErrMissingField) {
			m.rejectSubmission(c, http.StatusBadRequest, in, err)
			return
		}
		m.log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("contact submission failed")
		m.rejectSubmission(c, http.StatusInternalServerError, in, err)
		return
	}

	if common.IsXHR(c) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": thankYou})
		return
	}
	common.FlashRedirect(c, "success", thankYou, "/contact")
}

func (m *ContactModule) rejectSubmission(c *gin.Context, status int, in ContactInput, err error) {
	if common.IsXHR(c) {
		c.JSON(status, gin.H{"success": false, "message": errs.Notice(err)})
		return
	}
	common.Render(c, status, "contact.html", gin.H{
		"title": "Contact",
		"form":  in,
		"error": errs.Notice(err),
	})
}

func (m *ContactModule) markRead(c *gin.Context) {
	m.moderate(c, m.MarkRead, "Contact message marked as read.")
}

func (m *ContactModule) markResponded(c *gin.Context) {
	m.moderate(c, m.MarkResponded, "Contact message marked as responded.")
}

func (m *ContactModule) delete(c *gin.Context) {
	m.moderate(c, m.Delete, "Contact message deleted.")
}

func (m *ContactModule) moderate(c *gin.Context, action func(context.Context, *models.User, int) error, done string) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	if err := action(c.Request.Context(), common.Principal(c), id); err != nil {
		if errors.Is(err, errs.ErrAccessDenied) {
			common.Deny(c, "/")
			return
		}
		common.Fail(c, m.log, err)
		return
	}

	common.FlashRedirect(c, "success", done, "/admin")
}
