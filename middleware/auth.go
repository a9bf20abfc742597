package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildserver/config"
)

const (
	IdentityKey   = "identity"
	PlayerNameKey = "player_name"
)

// Auth validates the Bearer JWT token and stores the caller's identity.
func Auth(sec config.SecurityConfig) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctx.Set(IdentityKey, claims.Identity)
		ctx.Set(PlayerNameKey, claims.Name)
		ctx.Next()
	}
}

// GetIdentity retrieves the authenticated identity from the Gin context.
func GetIdentity(c *gin.Context) int64 {
	if v, exists := c.Get(IdentityKey); exists {
		return v.(int64)
	}
	return 0
}

func GetPlayerName(c *gin.Context) string {
	return c.GetString(PlayerNameKey)
}
