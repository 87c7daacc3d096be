// internal/interfaces/http/handlers/quote.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/quote"
)

// QuoteHandler handles quotation endpoints
type QuoteHandler struct {
	quotes *quote.Service
	config *config.Config
}

// NewQuoteHandler creates a new quote handler
func NewQuoteHandler(quotes *quote.Service, cfg *config.Config) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		config: cfg,
	}
}

// Create handles POST /quotes
func (h *QuoteHandler) Create(c *gin.Context) {
	var req quote.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	q, err := h.quotes.Create(&req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Quote created successfully",
		"data":    q,
	})
}

// List handles GET /quotes
func (h *QuoteHandler) List(c *gin.Context) {
	customerID, _ := strconv.ParseUint(c.Query("customer_id"), 10, 32)

	quotes, err := h.quotes.List(uint(customerID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve quotes",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": quotes,
	})
}

// Get handles GET /quotes/:id
func (h *QuoteHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	q, err := h.quotes.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": q,
	})
}

// AddLine handles POST /quotes/:id/lines
func (h *QuoteHandler) AddLine(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req quote.QuoteLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	q, err := h.quotes.AddLine(id, &req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Quote line added successfully",
		"data":    q,
	})
}

// Issue handles POST /quotes/:id/issue
func (h *QuoteHandler) Issue(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	q, err := h.quotes.Issue(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Quote issued successfully",
		"data":    q,
	})
}

// AcceptRequest selects the fulfillment policy for the resulting order
type AcceptRequest struct {
	FulfillmentPolicy order.FulfillmentPolicy `json:"fulfillment_policy"`
}

// Accept handles POST /quotes/:id/accept
func (h *QuoteHandler) Accept(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req AcceptRequest
	_ = c.ShouldBindJSON(&req)

	so, err := h.quotes.Accept(id, req.FulfillmentPolicy, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Quote accepted, sales order created",
		"data":    so,
	})
}

// DeclineRequest carries the reason the quote fell through
type DeclineRequest struct {
	Reason string `json:"reason"`
}

// Decline handles POST /quotes/:id/decline
func (h *QuoteHandler) Decline(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req DeclineRequest
	_ = c.ShouldBindJSON(&req)

	q, err := h.quotes.Decline(id, actorFrom(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Quote declined",
		"data":    q,
	})
}
