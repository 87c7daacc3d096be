// internal/domain/stock/entity.go
package stock

import (
	"time"

	"gorm.io/gorm"
)

// MovementType identifies a realized change to on-hand stock.
type MovementType string

const (
	MovementReceipt        MovementType = "RECEIPT"
	MovementIssue          MovementType = "ISSUE"
	MovementTransferIn     MovementType = "TRANSFER_IN"
	MovementTransferOut    MovementType = "TRANSFER_OUT"
	MovementManufactureIn  MovementType = "MANUFACTURE_IN"
	MovementManufactureOut MovementType = "MANUFACTURE_OUT"
	MovementAdjustmentIn   MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut  MovementType = "ADJUSTMENT_OUT"
	MovementScrap          MovementType = "SCRAP"
)

// Direction returns +1 for inflows and -1 for outflows.
func (t MovementType) Direction() int {
	switch t {
	case MovementReceipt, MovementTransferIn, MovementManufactureIn, MovementAdjustmentIn:
		return 1
	case MovementIssue, MovementTransferOut, MovementManufactureOut, MovementAdjustmentOut, MovementScrap:
		return -1
	default:
		return 0
	}
}

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	return t.Direction() != 0
}

// Warehouse represents a physical stock location (branch)
type Warehouse struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;size:100" json:"name"`
	Code      string         `gorm:"uniqueIndex;not null;size:20" json:"code"`
	City      string         `gorm:"size:50" json:"city"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	IsDefault bool           `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// StockLevel holds the aggregate counters for one product at one
// warehouse. SoftReserved and HardReserved are derived from the
// reservation table and are only ever written through the ledger's
// AdjustReservedCounters, inside the same transaction as the
// reservation row write.
type StockLevel struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProductID    uint      `gorm:"not null;uniqueIndex:idx_stock_levels_product_warehouse" json:"product_id"`
	WarehouseID  uint      `gorm:"not null;uniqueIndex:idx_stock_levels_product_warehouse" json:"warehouse_id"`
	OnHand       int       `gorm:"not null;default:0" json:"on_hand"`
	SoftReserved int       `gorm:"not null;default:0" json:"soft_reserved"`
	HardReserved int       `gorm:"not null;default:0" json:"hard_reserved"`
	OnOrder      int       `gorm:"not null;default:0" json:"on_order"`
	ReorderLevel int       `gorm:"not null;default:0" json:"reorder_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Warehouse Warehouse `gorm:"foreignKey:WarehouseID" json:"warehouse,omitempty"`
}

// StockMovement is one append-only audit entry for a realized change
// to OnHand. Rows are never updated or deleted after creation.
type StockMovement struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	StockLevelID  uint         `gorm:"not null;index" json:"stock_level_id"`
	ProductID     uint         `gorm:"not null;index" json:"product_id"`
	WarehouseID   uint         `gorm:"not null;index" json:"warehouse_id"`
	Type          MovementType `gorm:"not null;size:20" json:"type"`
	Quantity      int          `gorm:"not null" json:"quantity"` // always positive; Type carries direction
	OnHandBefore  int          `gorm:"not null" json:"on_hand_before"`
	OnHandAfter   int          `gorm:"not null" json:"on_hand_after"`
	ReferenceType string       `gorm:"size:50;index:idx_stock_movements_reference" json:"reference_type,omitempty"`
	ReferenceID   uint         `gorm:"index:idx_stock_movements_reference" json:"reference_id,omitempty"`
	Notes         string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy     string       `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

// TableName overrides
func (Warehouse) TableName() string     { return "warehouses" }
func (StockLevel) TableName() string    { return "stock_levels" }
func (StockMovement) TableName() string { return "stock_movements" }

// AvailableToPromise is the quantity that can still be committed to
// new demand: on hand minus active hard reservations.
func (l *StockLevel) AvailableToPromise() int {
	return l.OnHand - l.HardReserved
}

// AvailableToPromiseSoft additionally subtracts provisional holds.
func (l *StockLevel) AvailableToPromiseSoft() int {
	return l.OnHand - l.HardReserved - l.SoftReserved
}

// IsLowStock checks if the level is at or below its reorder threshold
func (l *StockLevel) IsLowStock() bool {
	return l.AvailableToPromise() <= l.ReorderLevel
}
