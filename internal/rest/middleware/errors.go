package middleware

import (
	"net/http"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/gin-gonic/gin"
)

// ErrorHandler converts errors attached by handlers into the standard
// error response with a status matching the error class.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		c.JSON(statusForError(err), ierr.NewErrorResponse(err))
	}
}

func statusForError(err error) int {
	switch {
	case ierr.IsValidation(err):
		return http.StatusBadRequest
	case ierr.IsNotFound(err):
		return http.StatusNotFound
	case ierr.IsAlreadyExists(err), ierr.IsVersionConflict(err):
		return http.StatusConflict
	case ierr.IsPermissionDenied(err):
		return http.StatusForbidden
	case ierr.IsGatewayDeclined(err):
		return http.StatusPaymentRequired
	case ierr.IsGatewayTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
