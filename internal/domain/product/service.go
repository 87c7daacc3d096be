// internal/domain/product/service.go
package product

import (
	"fmt"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service handles product lookups for the order and fulfillment flows
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new product service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// Get retrieves an active product by id
func (s *Service) Get(id uint) (*Product, error) {
	var p Product
	if err := s.db.Where("id = ? AND is_active = ?", id, true).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &p, nil
}

// GetBySKU retrieves an active product by SKU
func (s *Service) GetBySKU(sku string) (*Product, error) {
	var p Product
	if err := s.db.Where("sku = ? AND is_active = ?", sku, true).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &p, nil
}

// List retrieves active products
func (s *Service) List() ([]Product, error) {
	var products []Product
	if err := s.db.Where("is_active = ?", true).Order("sku").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}
