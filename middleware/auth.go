package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/config"
	"github.com/trailgreen/carbontrack/models"
	"github.com/trailgreen/carbontrack/utils"
)

const (
	// ContextUserIDKey is the gin context key holding the authenticated user id.
	ContextUserIDKey = "userID"
	// ContextUsernameKey is the gin context key holding the authenticated username.
	ContextUsernameKey = "username"
)

// AuthRequired validates the bearer token and injects the user identity
// into the request context.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			utils.Error(ctx, http.StatusUnauthorized, 40100, "missing or malformed authorization header")
			ctx.Abort()
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		if utils.IsTokenBlacklisted(tokenString) {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "token has been revoked")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid or expired token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// AdminRequired allows only administrators through. It must run after
// AuthRequired. A user is an administrator when the is_admin flag is set
// or the username is listed in the configured admin usernames.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := ctx.GetUint(ContextUserIDKey)
		username := ctx.GetString(ContextUsernameKey)
		if userID == 0 {
			utils.Error(ctx, http.StatusUnauthorized, 40100, "authentication required")
			ctx.Abort()
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			utils.Error(ctx, http.StatusForbidden, 40300, "admin privileges required")
			ctx.Abort()
			return
		}
		if !user.IsAdmin && !isConfiguredAdmin(username) {
			utils.Error(ctx, http.StatusForbidden, 40300, "admin privileges required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func isConfiguredAdmin(username string) bool {
	for _, name := range config.Get().AdminUsernames {
		if strings.EqualFold(name, username) {
			return true
		}
	}
	return false
}
