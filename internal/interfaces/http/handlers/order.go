// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/order"
)

// OrderHandler handles sales order endpoints
type OrderHandler struct {
	orders *order.Service
	config *config.Config
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *order.Service, cfg *config.Config) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		config: cfg,
	}
}

// Create handles POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req order.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	so, err := h.orders.CreateDraft(&req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Sales order created successfully",
		"data":    so,
	})
}

// List handles GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	var req order.OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

	response, err := h.orders.List(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": response,
	})
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	so, err := h.orders.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": so,
	})
}

// Confirm handles POST /orders/:id/confirm
func (h *OrderHandler) Confirm(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	so, err := h.orders.Confirm(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sales order confirmed successfully",
		"data":    so,
	})
}

// HoldRequest carries the operator's comment for hold actions
type HoldRequest struct {
	Comment string `json:"comment"`
}

// Hold handles POST /orders/:id/hold
func (h *OrderHandler) Hold(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req HoldRequest
	_ = c.ShouldBindJSON(&req)

	so, err := h.orders.Hold(id, actorFrom(c), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sales order placed on hold",
		"data":    so,
	})
}

// ReleaseHold handles POST /orders/:id/release-hold
func (h *OrderHandler) ReleaseHold(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req HoldRequest
	_ = c.ShouldBindJSON(&req)

	so, err := h.orders.ReleaseHold(id, actorFrom(c), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sales order hold released",
		"data":    so,
	})
}
