package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = utils.CtxUserID
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = utils.CtxUsername

	// SessionCookie carries the signed session token.
	SessionCookie = "newspaper_session"
	// LoginURL is where anonymous visitors are sent when a page needs a login.
	LoginURL = "/accounts/login/"
)

// CurrentUser resolves the session cookie, or a Bearer token, into a user.
// Anonymous and stale sessions pass through without a user.
func CurrentUser(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := sessionToken(ctx)
		if token == "" {
			ctx.Next()
			return
		}

		if utils.IsTokenBlacklisted(token) {
			ClearSession(ctx)
			ctx.Next()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			ClearSession(ctx)
			ctx.Next()
			return
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			ClearSession(ctx)
			ctx.Next()
			return
		}

		ctx.Set(ContextUserIDKey, user.ID)
		ctx.Set(ContextUsernameKey, user.Username)
		ctx.Set(utils.CtxUser, &user)
		ctx.Set(utils.CtxToken, token)
		ctx.Next()
	}
}

func sessionToken(ctx *gin.Context) string {
	if c, err := ctx.Cookie(SessionCookie); err == nil && c != "" {
		return c
	}
	parts := strings.SplitN(ctx.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SetSession stores token in an HttpOnly cookie.
func SetSession(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(SessionCookie, token, int(utils.SessionTTL.Seconds()), "/", "", config.Get().App.SecureCookies, true)
}

// ClearSession expires the session cookie.
func ClearSession(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(SessionCookie, "", -1, "/", "", config.Get().App.SecureCookies, true)
}

// User returns the authenticated user, if any.
func User(ctx *gin.Context) (*models.User, bool) {
	v, ok := ctx.Get(utils.CtxUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}

// LoginRequired redirects anonymous visitors to the login page, keeping the requested URL in next.
func LoginRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := User(ctx); !ok {
			RedirectToLogin(ctx)
			return
		}
		ctx.Next()
	}
}

// RedirectToLogin aborts with a redirect to the login page.
func RedirectToLogin(ctx *gin.Context) {
	next := ctx.Request.URL.RequestURI()
	ctx.Redirect(http.StatusFound, LoginURL+"?next="+url.QueryEscape(next))
	ctx.Abort()
}

// PermissionRequired lets the request through only when the user holds every permission.
// Anonymous visitors are sent to login; authenticated users without the permission get 403.
func PermissionRequired(db *gorm.DB, perms ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := User(ctx); !ok {
			RedirectToLogin(ctx)
			return
		}
		for _, perm := range perms {
			ok, err := HasPerm(db, ctx, perm)
			if err != nil {
				utils.Sugar.Errorf("permission check %s failed: %v", perm, err)
				views.Error(ctx, http.StatusInternalServerError, "")
				return
			}
			if !ok {
				views.Error(ctx, http.StatusForbidden, "You do not have permission to do this.")
				return
			}
		}
		ctx.Next()
	}
}

// HasPerm reports whether the current user holds perm. Configured admins hold every permission.
func HasPerm(db *gorm.DB, ctx *gin.Context, perm string) (bool, error) {
	user, ok := User(ctx)
	if !ok {
		return false, nil
	}
	if IsAdmin(ctx) {
		return true, nil
	}
	return models.UserHasPerm(db, user.ID, perm)
}

// IsAdmin reports whether the current username is listed in the admin configuration.
func IsAdmin(ctx *gin.Context) bool {
	uname := ctx.GetString(ContextUsernameKey)
	if uname == "" {
		return false
	}
	for _, u := range config.Get().App.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}
