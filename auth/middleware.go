package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"vatsuok/common"
	"vatsuok/models"
)

// Principal resolves the session's user for the current request. Sessions
// pointing at deleted or no longer approved users are dropped.
func (a *AuthModule) Principal(c *gin.Context) {
	session := sessions.Default(c)
	raw := session.Get(sessionUserKey)
	if raw == nil {
		c.Next()
		return
	}

	userID, ok := raw.(int)
	var user models.User
	if !ok || a.db.WithContext(c.Request.Context()).First(&user, userID).Error != nil || !user.Approved {
		session.Clear()
		session.Save()
		c.Next()
		return
	}

	common.SetPrincipal(c, &user)
	c.Next()
}

func RequireLogin(c *gin.Context) {
	if common.Principal(c) == nil {
		c.Redirect(http.StatusFound, "/signin")
		c.Abort()
		return
	}
	c.Next()
}

// RequireAdmin sends anonymous visitors to sign in and non-admins back to
// fallback with an access denied notice.
func RequireAdmin(fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := common.Principal(c)
		if user == nil {
			c.Redirect(http.StatusFound, "/signin")
			c.Abort()
			return
		}
		if !user.IsAdmin {
			common.Deny(c, fallback)
			c.Abort()
			return
		}
		c.Next()
	}
}
