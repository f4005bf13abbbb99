package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/models"
)

// respondError maps an error to the right HTTP status and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	var se *models.SyncError
	if !errors.As(err, &se) {
		se = models.NewSyncError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(statusFor(se.Code), models.ErrorResponse{Error: se.ToDetail()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
	})
}

// statusFor translates error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeTabNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeAlreadyRunning, models.ErrCodeNotRunning:
		return http.StatusConflict // 409
	case models.ErrCodeExtraction:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowser:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeStepTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
