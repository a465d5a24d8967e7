package common

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vatsuok/errs"
	"vatsuok/models"
)

const principalKey = "principal"

// flash categories, in display order
var flashCategories = []string{"danger", "warning", "success", "info"}

type Notice struct {
	Category string
	Message  string
}

// SetPrincipal attaches the authenticated user to this request only.
func SetPrincipal(c *gin.Context, user *models.User) {
	c.Set(principalKey, user)
}

// Principal returns the authenticated user of this request, or nil.
func Principal(c *gin.Context) *models.User {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func Flash(c *gin.Context, category, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, category)
	session.Save()
}

func FlashRedirect(c *gin.Context, category, message, location string) {
	Flash(c, category, message)
	c.Redirect(http.StatusFound, location)
}

// Deny answers a forbidden action with a notice and a redirect, never an
// error status.
func Deny(c *gin.Context, location string) {
	FlashRedirect(c, "danger", errs.Notice(errs.ErrAccessDenied), location)
}

func popFlashes(c *gin.Context) []Notice {
	session := sessions.Default(c)
	var notices []Notice
	for _, category := range flashCategories {
		for _, f := range session.Flashes(category) {
			if msg, ok := f.(string); ok {
				notices = append(notices, Notice{Category: category, Message: msg})
			}
		}
	}
	if len(notices) > 0 {
		session.Save()
	}
	return notices
}

// Render adds the principal and pending notices to data and renders name.
func Render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["principal"] = Principal(c)
	data["flashes"] = popFlashes(c)
	c.HTML(status, name, data)
}

func NotFound(c *gin.Context) {
	Render(c, http.StatusNotFound, "not_found.html", gin.H{"title": "Not Found"})
}

// Fail renders a known error as its notice, or logs and renders a 500.
func Fail(c *gin.Context, log zerolog.Logger, err error) {
	if errors.Is(err, errs.ErrNotFound) {
		NotFound(c)
		return
	}

	log.Error().Err(err).
		Str("request_id", c.GetString("request_id")).
		Str("path", c.Request.URL.Path).
		Msg("request failed")
	Render(c, http.StatusInternalServerError, "error.html", gin.H{
		"title": "Error",
		"error": errs.Notice(err),
	})
}

// ParamID parses the :id route parameter. Anything that is not a positive
// integer is treated as a missing record.
func ParamID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		NotFound(c)
		return 0, false
	}
	return id, true
}

// IsXHR reports whether the request came from a script rather than a form.
func IsXHR(c *gin.Context) bool {
	return c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}
