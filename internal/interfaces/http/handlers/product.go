// internal/interfaces/http/handlers/product.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/product"
)

// ProductHandler handles product catalog endpoints
type ProductHandler struct {
	products *product.Service
	config   *config.Config
}

// NewProductHandler creates a new product handler
func NewProductHandler(products *product.Service, cfg *config.Config) *ProductHandler {
	return &ProductHandler{
		products: products,
		config:   cfg,
	}
}

// List handles GET /products
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.products.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve products",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
	})
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	p, err := h.products.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": p,
	})
}

// GetBySKU handles GET /products/sku/:sku
func (h *ProductHandler) GetBySKU(c *gin.Context) {
	p, err := h.products.GetBySKU(c.Param("sku"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": p,
	})
}
