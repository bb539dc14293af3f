package handler

import (
	"io"

	"pixwallet/internal/adapter/http/dto"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"
	"pixwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	reconciler ports.ReconcilerService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler ports.ReconcilerService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, log: log}
}

// Pix handles POST /api/v1/webhooks/pix. Once the body is durably logged the
// answer is 200 whatever happened to the payments inside; only a failure to
// log asks the provider to retry.
func (h *WebhookHandler) Pix(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}
	if len(raw) == 0 {
		response.Error(c, apperror.Validation("empty callback body"))
		return
	}

	result, err := h.reconciler.HandleProviderCallback(c.Request.Context(), raw)
	if err != nil {
		h.log.Error().Err(err).Msg("provider callback not logged")
		response.Error(c, err)
		return
	}

	response.OK(c, dto.CallbackResponse{
		Received:  true,
		Duplicate: result.Duplicate,
		Completed: result.Completed,
	})
}
