// internal/interfaces/http/handlers/stock.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/stock"
)

// StockHandler handles warehouse and stock ledger endpoints
type StockHandler struct {
	ledger *stock.Ledger
	config *config.Config
}

// NewStockHandler creates a new stock handler
func NewStockHandler(ledger *stock.Ledger, cfg *config.Config) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		config: cfg,
	}
}

// WAREHOUSE ENDPOINTS

// CreateWarehouse handles POST /admin/warehouses
func (h *StockHandler) CreateWarehouse(c *gin.Context) {
	var req stock.CreateWarehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	warehouse, err := h.ledger.CreateWarehouse(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Warehouse created successfully",
		"data":    warehouse,
	})
}

// GetWarehouses handles GET /stock/warehouses
func (h *StockHandler) GetWarehouses(c *gin.Context) {
	warehouses, err := h.ledger.GetWarehouses()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve warehouses",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": warehouses,
	})
}

// GetDefaultWarehouse handles GET /stock/warehouses/default
func (h *StockHandler) GetDefaultWarehouse(c *gin.Context) {
	warehouse, err := h.ledger.GetDefaultWarehouse()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": warehouse,
	})
}

// STOCK LEVEL ENDPOINTS

// GetLevel handles GET /stock/levels/:productId/:warehouseId
func (h *StockHandler) GetLevel(c *gin.Context) {
	productID, ok := parseUintParam(c, "productId")
	if !ok {
		return
	}
	warehouseID, ok := parseUintParam(c, "warehouseId")
	if !ok {
		return
	}

	level, err := h.ledger.GetLevel(productID, warehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"level":                     level,
			"available_to_promise":      level.AvailableToPromise(),
			"available_to_promise_soft": level.AvailableToPromiseSoft(),
		},
	})
}

// ListLevels handles GET /stock/levels with optional product/warehouse filters
func (h *StockHandler) ListLevels(c *gin.Context) {
	productID, _ := strconv.ParseUint(c.Query("product_id"), 10, 32)
	warehouseID, _ := strconv.ParseUint(c.Query("warehouse_id"), 10, 32)

	levels, err := h.ledger.ListLevels(uint(productID), uint(warehouseID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve stock levels",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": levels,
	})
}

// MOVEMENT ENDPOINTS

// ListMovements handles GET /stock/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	productID, _ := strconv.ParseUint(c.Query("product_id"), 10, 32)
	warehouseID, _ := strconv.ParseUint(c.Query("warehouse_id"), 10, 32)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := h.ledger.ListMovements(uint(productID), uint(warehouseID), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve stock movements",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": movements,
	})
}

// AdjustRequest is the payload for manual stock corrections
type AdjustRequest struct {
	ProductID   uint   `json:"product_id" binding:"required"`
	WarehouseID uint   `json:"warehouse_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	Notes       string `json:"notes" binding:"required"`
}

// Adjust handles POST /admin/stock/adjust
func (h *StockHandler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	level, err := h.ledger.Adjust(req.ProductID, req.WarehouseID, req.Quantity, req.Notes, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock adjusted successfully",
		"data":    level,
	})
}

// ReceivePurchaseRequest is the payload for booking in purchased stock
type ReceivePurchaseRequest struct {
	ProductID       uint `json:"product_id" binding:"required"`
	WarehouseID     uint `json:"warehouse_id" binding:"required"`
	Quantity        int  `json:"quantity" binding:"required"`
	PurchaseOrderID uint `json:"purchase_order_id"`
}

// ReceivePurchase handles POST /admin/stock/receive
func (h *StockHandler) ReceivePurchase(c *gin.Context) {
	var req ReceivePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	level, err := h.ledger.ReceivePurchase(req.ProductID, req.WarehouseID, req.Quantity, req.PurchaseOrderID, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock received successfully",
		"data":    level,
	})
}
