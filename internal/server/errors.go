package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/serviceerror"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

type errorPayload struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusForKind(kind serviceerror.Kind) int {
	switch kind {
	case serviceerror.KindValidation:
		return http.StatusBadRequest
	case serviceerror.KindConflict:
		return http.StatusConflict
	case serviceerror.KindPermission:
		return http.StatusForbidden
	case serviceerror.KindNotFound:
		return http.StatusNotFound
	case serviceerror.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error body for a service failure. Internal
// failures were already logged by the service and keep their cause private.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	serviceErr, ok := serviceerror.As(err)
	if !ok {
		h.logger.Error("unclassified handler error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorPayload{
			Error:   "internal_error",
			Code:    "server.internal_error",
			Message: internalErrorMessage,
		})
		return
	}
	status := statusForKind(serviceErr.Kind())
	message := serviceErr.Message()
	if status == http.StatusInternalServerError {
		message = internalErrorMessage
	}
	c.AbortWithStatusJSON(status, errorPayload{
		Error:   serviceErr.Reason(),
		Code:    serviceErr.Code(),
		Message: message,
	})
}

// respondBadRequest rejects a request that could not be decoded. An oversized
// upload is answered with 413 whatever the reason.
func respondBadRequest(c *gin.Context, reason string, err error) {
	if errors.Is(err, errFileTooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorPayload{
			Error:   "file_too_large",
			Code:    "request.file_too_large",
			Message: err.Error(),
		})
		return
	}
	message := reason
	if err != nil {
		message = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{
		Error:   reason,
		Code:    "request." + reason,
		Message: message,
	})
}
