package checkout

import (
	"errors"
	"net/http"

	"github.com/clickcart/server/internal/shared/response"
	"github.com/gin-gonic/gin"
)

// Handler exposes the checkout HTTP surface.
type Handler struct {
	service *Service
}

// NewHandler creates a new checkout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the public checkout routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	checkout := r.Group("/checkout")
	{
		checkout.POST("/sessions", h.CreateSession)
		checkout.GET("/sessions/:id", h.GetSession)
		checkout.POST("/sessions/:id/start", h.Start)
		checkout.POST("/sessions/:id/approve", h.Approve)
		checkout.POST("/sessions/:id/cancel", h.Cancel)
		checkout.POST("/sessions/:id/retry", h.Retry)
		checkout.GET("/return", h.ApprovalReturn)
		checkout.GET("/cancel", h.CancelReturn)
		checkout.GET("/payment-options", h.PaymentOptions)
	}
}

// CreateSession opens a checkout session for the posted cart.
func (h *Handler) CreateSession(c *gin.Context) {
	var cart Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sess, err := h.service.CreateSession(c.Request.Context(), cart)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

// GetSession returns the session, with the total converted to the
// requested display currency when ?currency= is given.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	total := h.service.DisplayTotal(c.Request.Context(), sess, c.Query("currency"))
	c.JSON(http.StatusOK, gin.H{
		"session": sess,
		"display_total": gin.H{
			"amount":   total.Amount,
			"value":    total.Value(),
			"currency": total.Currency,
		},
	})
}

// Start validates shopper input and creates the provider order.
func (h *Handler) Start(c *gin.Context) {
	var input CheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sess, err := h.service.Start(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":      sess,
		"approval_url": sess.ApprovalURL,
		"order_id":     sess.ProviderOrderID,
	})
}

// ApproveRequest is the embedded-flow approval payload.
type ApproveRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	PayerID string `json:"payer_id"`
}

// Approve captures an order approved through the embedded UI.
func (h *Handler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sess, err := h.service.HandleApproval(c.Request.Context(), c.Param("id"), req.OrderID, req.PayerID)
	h.respondCaptureOutcome(c, sess, err)
}

// ApprovalReturn handles the provider redirect after shopper approval.
// The provider appends ?token=<order id>&PayerID=<payer> to the
// configured return URL.
func (h *Handler) ApprovalReturn(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.BadRequest(c, "missing token")
		return
	}

	sess, err := h.service.HandleApprovalByOrder(c.Request.Context(), token, c.Query("PayerID"))
	h.respondCaptureOutcome(c, sess, err)
}

// Cancel abandons an approval-pending session.
func (h *Handler) Cancel(c *gin.Context) {
	sess, err := h.service.HandleCancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// CancelReturn handles the provider cancel redirect.
func (h *Handler) CancelReturn(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.BadRequest(c, "missing token")
		return
	}

	sess, err := h.service.HandleCancelByOrder(c.Request.Context(), token)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Retry returns a failed or cancelled session to info collection.
func (h *Handler) Retry(c *gin.Context) {
	sess, err := h.service.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// PaymentOptions lists the enabled payment methods.
func (h *Handler) PaymentOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"options": h.service.PaymentOptions()})
}

// ClientToken issues a provider client token for the embedded UI. The
// route accepts POST only; anything else is 405.
func (h *Handler) ClientToken(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		response.MethodNotAllowed(c)
		return
	}

	token, err := h.service.ClientToken(c.Request.Context())
	if err != nil {
		response.InternalError(c, "client token unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientToken": token})
}

// respondCaptureOutcome reports a capture attempt. A failed capture is a
// payment outcome, not a transport error: the session comes back with
// its failure reason and a 402.
func (h *Handler) respondCaptureOutcome(c *gin.Context, sess *Session, err error) {
	if err != nil {
		if sess != nil && sess.Status == StatusFailed {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"session": sess,
				"error":   sess.FailureReason,
			})
			return
		}
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Error:   "validation failed",
			Details: validationErr.Fields,
		})
		return
	}
	response.HandleErrorWithDefault(c, err, checkoutErrorMappings)
}

var checkoutErrorMappings = []response.ErrorMapping{
	{Err: ErrEmptyCart, Status: http.StatusBadRequest},
	{Err: ErrInvalidTotal, Status: http.StatusBadRequest},
	{Err: ErrSessionNotFound, Status: http.StatusNotFound},
	{Err: ErrInvalidTransition, Status: http.StatusConflict},
	{Err: ErrOrderMismatch, Status: http.StatusConflict},
}
