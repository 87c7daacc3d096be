// internal/domain/reservation/entity.go
package reservation

import (
	"time"
)

// Type distinguishes provisional holds from binding ones.
type Type string

const (
	// TypeSoft is a provisional hold (e.g. an active quote basket).
	// It expires automatically and does not block hard commitment.
	TypeSoft Type = "SOFT"
	// TypeHard is a binding hold backing a confirmed order or an
	// active fulfillment document, counted against availability.
	TypeHard Type = "HARD"
)

// IsValid reports whether t is a known reservation type.
func (t Type) IsValid() bool {
	return t == TypeSoft || t == TypeHard
}

// ReferenceType is the closed set of document kinds a reservation can
// be held against. Keeping the set closed means an unrecognized
// reference cannot silently fail to match anywhere.
type ReferenceType string

const (
	RefQuote           ReferenceType = "Quote"
	RefSalesOrder      ReferenceType = "SalesOrder"
	RefPickingSlip     ReferenceType = "PickingSlip"
	RefJobCard         ReferenceType = "JobCard"
	RefTransferRequest ReferenceType = "TransferRequest"
)

// IsValid reports whether rt is a known reference kind.
func (rt ReferenceType) IsValid() bool {
	switch rt {
	case RefQuote, RefSalesOrder, RefPickingSlip, RefJobCard, RefTransferRequest:
		return true
	}
	return false
}

// StockReservation holds a quantity of a product at a warehouse
// against exactly one (ReferenceType, ReferenceID) pair. Rows are
// soft-deleted via ReleasedAt, never hard-deleted.
type StockReservation struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ProductID     uint          `gorm:"not null;index:idx_reservations_product_warehouse" json:"product_id"`
	WarehouseID   uint          `gorm:"not null;index:idx_reservations_product_warehouse" json:"warehouse_id"`
	Quantity      int           `gorm:"not null" json:"quantity"`
	Type          Type          `gorm:"not null;size:10" json:"type"`
	ReferenceType ReferenceType `gorm:"not null;size:30;index:idx_reservations_reference" json:"reference_type"`
	ReferenceID   uint          `gorm:"not null;index:idx_reservations_reference" json:"reference_id"`
	// ReferenceLine attributes an order-scope reservation to a
	// specific sales order line; zero when not applicable.
	ReferenceLine  uint       `gorm:"default:0" json:"reference_line,omitempty"`
	IdempotencyKey *string    `gorm:"uniqueIndex;size:120" json:"idempotency_key,omitempty"`
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at,omitempty"` // SOFT only
	CreatedBy      string     `gorm:"size:100" json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ReleasedAt     *time.Time `gorm:"index" json:"released_at,omitempty"`
	ReleasedBy     string     `gorm:"size:100" json:"released_by,omitempty"`
	ReleaseReason  string     `gorm:"size:255" json:"release_reason,omitempty"`
}

// TableName overrides
func (StockReservation) TableName() string { return "stock_reservations" }

// Active reports whether the reservation still holds stock
func (r *StockReservation) Active() bool {
	return r.ReleasedAt == nil
}
