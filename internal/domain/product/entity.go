// internal/domain/product/entity.go
package product

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FulfillmentClass tells the plan executor how a product is sourced
type FulfillmentClass string

const (
	// Stocked products ship straight off the shelf.
	Stocked FulfillmentClass = "STOCKED"
	// AssemblyRequired products are kitted on a job card before
	// they can ship, even when components are on hand.
	AssemblyRequired FulfillmentClass = "ASSEMBLY_REQUIRED"
	// MadeToOrder products are only manufactured once ordered.
	MadeToOrder FulfillmentClass = "MADE_TO_ORDER"
)

// NeedsAssembly reports whether a job card is required to fulfill
func (c FulfillmentClass) NeedsAssembly() bool {
	return c == AssemblyRequired || c == MadeToOrder
}

// Product represents the product entity. Pricing is precomputed
// upstream; the value here is what quoting already settled on.
type Product struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	SKU              string           `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name             string           `gorm:"not null;size:255" json:"name"`
	Description      string           `gorm:"type:text" json:"description"`
	UnitPrice        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	FulfillmentClass FulfillmentClass `gorm:"not null;size:30;default:'STOCKED'" json:"fulfillment_class"`
	IsActive         bool             `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string { return "products" }
