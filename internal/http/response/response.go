package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError maps a taxonomy error onto its HTTP status and kind code;
// anything unclassified is a plain 500.
func RespondAppError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		RespondError(c, statusForKind(ae), string(ae.Kind), err)
		return
	}
	RespondError(c, http.StatusInternalServerError, "internal", err)
}

// statusForKind resolves the response status from the error kind. A recorded
// upstream status refines the provider kinds only; local kinds always map
// from the taxonomy so a missing status can never fall through as a 200.
func statusForKind(ae *apperr.Error) int {
	switch ae.Kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExtraction:
		return http.StatusUnprocessableEntity
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindEmbeddingService, apperr.KindCompletionService:
		if s := ae.HTTPStatusCode(); s >= 500 {
			return s
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
