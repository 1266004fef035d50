package order

import (
	"net/http"

	"github.com/clickcart/server/internal/shared/response"
	"github.com/gin-gonic/gin"
)

// Handler exposes the admin order surface.
type Handler struct {
	repo    *Repository
	machine *StateMachine
}

// NewHandler creates a new order handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo, machine: NewStateMachine()}
}

// RegisterAdminRoutes registers order routes behind admin auth.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PATCH("/:id/status", h.UpdateStatus)
	}
}

// ListOrders returns all local orders.
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// GetOrder returns a single order by id.
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleErrorWithDefault(c, err, orderErrorMappings)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// UpdateStatusRequest is the admin fulfillment update payload.
type UpdateStatusRequest struct {
	Status FulfillmentStatus `json:"status" binding:"required"`
}

// UpdateStatus moves an order through the fulfillment machine.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	o, err := h.repo.Update(c.Request.Context(), c.Param("id"), func(o *LocalOrder) error {
		return h.machine.Transition(o, req.Status)
	})
	if err != nil {
		response.HandleErrorWithDefault(c, err, orderErrorMappings)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

var orderErrorMappings = []response.ErrorMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound},
	{Err: ErrInvalidTransition, Status: http.StatusUnprocessableEntity},
	{Err: ErrOrderImmutable, Status: http.StatusConflict},
}
