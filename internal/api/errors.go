package api

import (
	"net/http"

	"go-direct-chat/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// statusFromError maps service error codes onto HTTP statuses.
func statusFromError(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFromError(err), gin.H{"error": err.Error()})
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}
