package middleware

import (
	"net/http"
	"strings"

	"go-direct-chat/internal/repository"
	"go-direct-chat/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the JWT and loads the user. Browser WebSocket
// clients cannot set headers on the upgrade request, so a token query
// parameter is accepted as a fallback.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			// Expected format: "Bearer token"
			parts := strings.SplitN(authHeader, " ", 2)
			if !(len(parts) == 2 && parts[0] == "Bearer") {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization is required"})
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		userRepo := repository.NewUserRepository()
		user, err := userRepo.FindByID(claims.UserID)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("user", user)

		c.Next()
	}
}
