package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrUsernameTaken), errors.Is(err, domain.ErrSoldOut):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTrainNotFound):
		return http.StatusNotFound
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes {"error": code}. Validation failures also carry the
// reason; internal errors are logged by the request logger, never echoed.
func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"error": domain.CodeOf(err)}
	if status == http.StatusBadRequest {
		body["message"] = err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, domain.Invalid("%s", err.Error()))
}
