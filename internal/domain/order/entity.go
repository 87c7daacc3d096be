// internal/domain/order/entity.go
package order

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status represents the sales order status
type Status string

const (
	StatusDraft            Status = "draft"
	StatusConfirmed        Status = "confirmed"
	StatusProcessing       Status = "processing"
	StatusReadyToShip      Status = "ready_to_ship"
	StatusPartiallyShipped Status = "partially_shipped"
	StatusShipped          Status = "shipped"
	StatusDelivered        Status = "delivered"
	StatusInvoiced         Status = "invoiced"
	StatusClosed           Status = "closed"
	StatusOnHold           Status = "on_hold"
	StatusCancelled        Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// FulfillmentPolicy controls how shortfalls are handled
type FulfillmentPolicy string

const (
	ShipPartial   FulfillmentPolicy = "SHIP_PARTIAL"
	ShipComplete  FulfillmentPolicy = "SHIP_COMPLETE"
	SalesDecision FulfillmentPolicy = "SALES_DECISION"
)

// IsValid reports whether p is a known policy.
func (p FulfillmentPolicy) IsValid() bool {
	return p == ShipPartial || p == ShipComplete || p == SalesDecision
}

// SalesOrder represents the order header. Status is only ever written
// through the transition function in state.go; callers that poke the
// field directly bypass the guards and lose the audit trail.
type SalesOrder struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	CustomerID  uint   `gorm:"not null;index" json:"customer_id"`
	Status      Status `gorm:"not null;default:'draft'" json:"status"`
	// PriorStatus remembers where to return when a hold is released.
	PriorStatus       Status            `gorm:"size:30" json:"prior_status,omitempty"`
	FulfillmentPolicy FulfillmentPolicy `gorm:"not null;default:'SHIP_PARTIAL'" json:"fulfillment_policy"`
	WarehouseID       uint              `gorm:"not null" json:"warehouse_id"`
	Notes             string            `gorm:"type:text" json:"notes"`
	CreatedBy         string            `gorm:"size:100" json:"created_by"`

	// Timestamps
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
	ShippedAt   *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Lines         []SalesOrderLine `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lines"`
	StatusHistory []StatusHistory  `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// SalesOrderLine tracks one product on an order. The quantity
// counters are derived from downstream document completion, never set
// arbitrarily.
type SalesOrderLine struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	OrderID           uint            `gorm:"not null;index" json:"order_id"`
	LineNo            int             `gorm:"not null" json:"line_no"`
	ProductID         uint            `gorm:"not null;index" json:"product_id"`
	WarehouseID       uint            `gorm:"not null" json:"warehouse_id"`
	SKU               string          `gorm:"not null;size:100" json:"sku"`
	Name              string          `gorm:"not null;size:255" json:"name"`
	QuantityOrdered   int             `gorm:"not null" json:"quantity_ordered"`
	QuantityPicked    int             `gorm:"not null;default:0" json:"quantity_picked"`
	QuantityShipped   int             `gorm:"not null;default:0" json:"quantity_shipped"`
	QuantityBackorder int             `gorm:"not null;default:0" json:"quantity_backorder"`
	PendingTransfer   bool            `gorm:"default:false" json:"pending_transfer"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StatusHistory tracks order status changes
type StatusHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	Status    Status    `gorm:"not null" json:"status"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedBy string    `gorm:"size:100" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides
func (SalesOrder) TableName() string     { return "sales_orders" }
func (SalesOrderLine) TableName() string { return "sales_order_lines" }
func (StatusHistory) TableName() string  { return "sales_order_status_history" }

// LineTotal returns quantity times unit price
func (l *SalesOrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.QuantityOrdered)))
}

// FullyAllocated reports whether every line has its ordered quantity
// accounted for by picks plus recorded backorder.
func (o *SalesOrder) FullyAllocated() bool {
	for i := range o.Lines {
		l := &o.Lines[i]
		if l.QuantityPicked+l.QuantityBackorder != l.QuantityOrdered {
			return false
		}
	}
	return len(o.Lines) > 0
}

// HasBackorder reports whether any line still awaits replenishment
func (o *SalesOrder) HasBackorder() bool {
	for i := range o.Lines {
		if o.Lines[i].QuantityBackorder > 0 {
			return true
		}
	}
	return false
}

// FullyShipped reports whether every ordered unit left the building
func (o *SalesOrder) FullyShipped() bool {
	for i := range o.Lines {
		l := &o.Lines[i]
		if l.QuantityShipped != l.QuantityOrdered {
			return false
		}
	}
	return len(o.Lines) > 0
}
