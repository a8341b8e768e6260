package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agenthire/internal/api/dto"
	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/gin-gonic/gin"
)

// HTTPStatus maps an error kind to its response code.
func HTTPStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindValidation, domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindExternalVerification:
		return http.StatusUnprocessableEntity
	case domain.KindWebhookDelivery:
		return http.StatusBadGateway
	case domain.KindProcessingTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal errors are logged and
// their details withheld.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	code := HTTPStatus(kind)

	body := dto.ErrorResponse{
		Error:  err.Error(),
		Kind:   string(kind),
		Status: string(domain.StatusOf(err)),
	}
	if code >= http.StatusInternalServerError && kind == domain.KindInternal {
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		body.Error = "internal error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(code, body)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
		Error: message,
		Kind:  string(domain.KindBadRequest),
	})
}
