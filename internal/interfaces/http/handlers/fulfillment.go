// internal/interfaces/http/handlers/fulfillment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/fulfillment"
)

// FulfillmentHandler handles plan execution and document workflows
type FulfillmentHandler struct {
	planner   *fulfillment.Planner
	workflows *fulfillment.Workflows
	config    *config.Config
}

// NewFulfillmentHandler creates a new fulfillment handler
func NewFulfillmentHandler(planner *fulfillment.Planner, workflows *fulfillment.Workflows, cfg *config.Config) *FulfillmentHandler {
	return &FulfillmentHandler{
		planner:   planner,
		workflows: workflows,
		config:    cfg,
	}
}

// reasonRequest carries an optional operator reason for cancellations
type reasonRequest struct {
	Reason string `json:"reason"`
}

// PLAN EXECUTION

// ExecutePlan handles POST /orders/:id/execute-plan
func (h *FulfillmentHandler) ExecutePlan(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	result, err := h.planner.ExecutePlan(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Fulfillment plan executed",
		"data":    result,
	})
}

// PICKING SLIPS

// StartPicking handles POST /picking-slips/:id/start
func (h *FulfillmentHandler) StartPicking(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	slip, err := h.workflows.StartPicking(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Picking started",
		"data":    slip,
	})
}

// CompletePickingSlip handles POST /picking-slips/:id/complete
func (h *FulfillmentHandler) CompletePickingSlip(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	slip, err := h.workflows.CompletePickingSlip(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Picking slip completed",
		"data":    slip,
	})
}

// CancelPickingSlip handles POST /picking-slips/:id/cancel
func (h *FulfillmentHandler) CancelPickingSlip(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	slip, err := h.workflows.CancelPickingSlip(id, actorFrom(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Picking slip cancelled",
		"data":    slip,
	})
}

// JOB CARDS

// StartJobCard handles POST /job-cards/:id/start
func (h *FulfillmentHandler) StartJobCard(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	card, err := h.workflows.StartJobCard(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job card started",
		"data":    card,
	})
}

// HoldJobCard handles POST /job-cards/:id/hold
func (h *FulfillmentHandler) HoldJobCard(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	card, err := h.workflows.HoldJobCard(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job card placed on hold",
		"data":    card,
	})
}

// ResumeJobCard handles POST /job-cards/:id/resume
func (h *FulfillmentHandler) ResumeJobCard(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	card, err := h.workflows.ResumeJobCard(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job card resumed",
		"data":    card,
	})
}

// CompleteJobCard handles POST /job-cards/:id/complete
func (h *FulfillmentHandler) CompleteJobCard(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	card, err := h.workflows.CompleteJobCard(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job card completed",
		"data":    card,
	})
}

// CancelJobCard handles POST /job-cards/:id/cancel
func (h *FulfillmentHandler) CancelJobCard(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	card, err := h.workflows.CancelJobCard(id, actorFrom(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job card cancelled",
		"data":    card,
	})
}

// TRANSFERS

// DispatchTransfer handles POST /transfers/:id/dispatch
func (h *FulfillmentHandler) DispatchTransfer(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	request, err := h.workflows.DispatchTransfer(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Transfer dispatched",
		"data":    request,
	})
}

// ReceiveTransfer handles POST /transfers/:id/receive
func (h *FulfillmentHandler) ReceiveTransfer(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	request, err := h.workflows.ReceiveTransfer(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Transfer received",
		"data":    request,
	})
}

// CancelTransfer handles POST /transfers/:id/cancel
func (h *FulfillmentHandler) CancelTransfer(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	request, err := h.workflows.CancelTransfer(id, actorFrom(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Transfer cancelled",
		"data":    request,
	})
}

// SHIPPING AND INVOICING

// ShipOrder handles POST /orders/:id/ship
func (h *FulfillmentHandler) ShipOrder(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	note, err := h.workflows.ShipOrder(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order shipped",
		"data":    note,
	})
}

// ConfirmDelivery handles POST /delivery-notes/:id/confirm
func (h *FulfillmentHandler) ConfirmDelivery(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	note, err := h.workflows.ConfirmDelivery(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Delivery confirmed",
		"data":    note,
	})
}

// IssueTaxInvoice handles POST /orders/:id/invoice
func (h *FulfillmentHandler) IssueTaxInvoice(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.workflows.IssueTaxInvoice(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Tax invoice issued",
		"data":    invoice,
	})
}

// CloseOrder handles POST /orders/:id/close
func (h *FulfillmentHandler) CloseOrder(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.workflows.CloseOrder(id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order closed",
	})
}

// CancelOrder handles POST /orders/:id/cancel
func (h *FulfillmentHandler) CancelOrder(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.workflows.CancelOrder(id, actorFrom(c), req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled",
	})
}
