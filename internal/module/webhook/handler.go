package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/clickcart/server/internal/module/paypal"
	"github.com/clickcart/server/internal/shared/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureVerifier checks a delivery against the provider.
type SignatureVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers http.Header, rawBody []byte) bool
}

// Handler receives provider webhook deliveries.
type Handler struct {
	verifier  SignatureVerifier
	processor *Processor
	logger    *zap.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(verifier SignatureVerifier, processor *Processor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{verifier: verifier, processor: processor, logger: logger}
}

// RegisterRoutes binds the webhook endpoint. All methods route here so
// non-POST requests get an explicit 405.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.Any("/paypal-webhook", h.Receive)
}

// Receive verifies and processes one delivery. The signature covers the
// exact bytes received, so the body is read raw before any decoding.
// Verification failure is a hard boundary: 401 and nothing mutated.
func (h *Handler) Receive(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		response.MethodNotAllowed(c)
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	if !h.verifier.VerifyWebhookSignature(c.Request.Context(), c.Request.Header, rawBody) {
		response.Unauthorized(c, "webhook signature verification failed")
		return
	}

	var evt paypal.WebhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		response.BadRequest(c, "malformed event payload")
		return
	}

	result, err := h.processor.Process(c.Request.Context(), &evt)
	if err != nil {
		// A 5xx makes the provider redeliver; the event record only
		// exists once processing succeeded.
		h.logger.Error("webhook processing failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
			zap.Error(err),
		)
		response.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":   true,
		"event_id":   result.EventID,
		"event_type": result.EventType,
	})
}
