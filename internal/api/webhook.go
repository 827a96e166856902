package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/webhook"
	"go.uber.org/zap"
)

// maxWebhookBody caps the size of a provider callback
const maxWebhookBody = 64 << 10

// SignatureWebhook handles the signing provider's callback
func (h *Handler) SignatureWebhook(c *gin.Context) {
	body, ok := h.verifiedBody(c, models.WebhookProviderSignature, h.signatureVerifier)
	if !ok {
		return
	}

	var payload models.SignatureWebhookPayload
	if err := binding.JSON.BindBody(body, &payload); err != nil {
		h.metrics.Webhook(string(models.WebhookProviderSignature), metrics.WebhookRejected)
		c.Error(ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.HandleSignatureWebhook(c.Request.Context(), payload, body)
	if err != nil {
		h.logger.Warn("signature webhook not applied",
			zap.String("operation_id", payload.OperationID),
			zap.String("status", string(payload.Status)),
			zap.Error(err),
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PaymentWebhook handles the mobile-money provider's callback
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, ok := h.verifiedBody(c, models.WebhookProviderPayment, h.paymentVerifier)
	if !ok {
		return
	}

	var payload models.PaymentWebhookPayload
	if err := binding.JSON.BindBody(body, &payload); err != nil {
		h.metrics.Webhook(string(models.WebhookProviderPayment), metrics.WebhookRejected)
		c.Error(ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.HandlePaymentWebhook(c.Request.Context(), payload, body)
	if err != nil {
		h.logger.Warn("payment webhook not applied",
			zap.String("transaction_id", payload.TransactionID),
			zap.String("status", string(payload.Status)),
			zap.Error(err),
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// verifiedBody reads the raw body and checks its signature before anything
// else looks at it
func (h *Handler) verifiedBody(c *gin.Context, provider models.WebhookProvider, v *webhook.Verifier) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Could not read request body").
			Mark(ierr.ErrValidation))
		return nil, false
	}
	if len(body) > maxWebhookBody {
		h.metrics.Webhook(string(provider), metrics.WebhookRejected)
		c.Error(ierr.NewErrorf("webhook body exceeds %d bytes", maxWebhookBody).
			WithHintf("Webhook body must not exceed %d bytes", maxWebhookBody).
			Mark(ierr.ErrTooLarge))
		return nil, false
	}

	if err := v.Verify(body, c.Request.Header); err != nil {
		h.metrics.Webhook(string(provider), metrics.WebhookRejected)
		h.logger.Warn("webhook rejected",
			zap.String("provider", string(provider)),
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		c.Error(err)
		return nil, false
	}

	return body, true
}
