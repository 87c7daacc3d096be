// internal/domain/fulfillment/entity.go
package fulfillment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DocumentStatus is the shared status enum for fulfillment documents
type DocumentStatus string

const (
	DocPending    DocumentStatus = "pending"
	DocInProgress DocumentStatus = "in_progress"
	DocComplete   DocumentStatus = "complete"
	DocCancelled  DocumentStatus = "cancelled"
	DocOnHold     DocumentStatus = "on_hold"
)

// IsTerminal reports whether no further transitions are possible
func (s DocumentStatus) IsTerminal() bool {
	return s == DocComplete || s == DocCancelled
}

// PickingSlip instructs the floor to pick stock for one order at one
// warehouse. It owns HARD reservations referencing itself; completing
// the slip releases them and writes the ISSUE movements in the same
// transaction.
type PickingSlip struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SlipNumber  string         `gorm:"uniqueIndex;not null;size:50" json:"slip_number"`
	OrderID     uint           `gorm:"not null;index" json:"order_id"`
	WarehouseID uint           `gorm:"not null" json:"warehouse_id"`
	Status      DocumentStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedBy   string         `gorm:"size:100" json:"created_by"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Lines []PickingSlipLine `gorm:"foreignKey:PickingSlipID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lines"`
}

// PickingSlipLine ties a slip quantity back to the order line it serves
type PickingSlipLine struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PickingSlipID uint      `gorm:"not null;index" json:"picking_slip_id"`
	OrderLineID   uint      `gorm:"not null;index" json:"order_line_id"`
	ProductID     uint      `gorm:"not null" json:"product_id"`
	SKU           string    `gorm:"size:100" json:"sku"`
	Quantity      int       `gorm:"not null" json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobCard instructs the workshop to assemble or manufacture for one
// order line. Cards for stocked assemblies hold a reservation on the
// finished units; made-to-order cards hold none, the manufacture
// movement at completion supplies the stock.
type JobCard struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CardNumber  string         `gorm:"uniqueIndex;not null;size:50" json:"card_number"`
	OrderID     uint           `gorm:"not null;index" json:"order_id"`
	OrderLineID uint           `gorm:"not null;index" json:"order_line_id"`
	ProductID   uint           `gorm:"not null" json:"product_id"`
	WarehouseID uint           `gorm:"not null" json:"warehouse_id"`
	Quantity    int            `gorm:"not null" json:"quantity"`
	Status      DocumentStatus `gorm:"not null;default:'pending'" json:"status"`
	Notes       string         `gorm:"type:text" json:"notes"`
	CreatedBy   string         `gorm:"size:100" json:"created_by"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TransferRequest moves reserved stock between warehouses for one
// order line. The reservation sits at the source until dispatch; a new
// one is created at the destination on receipt.
type TransferRequest struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	RequestNumber   string         `gorm:"uniqueIndex;not null;size:50" json:"request_number"`
	OrderID         uint           `gorm:"not null;index" json:"order_id"`
	OrderLineID     uint           `gorm:"not null;index" json:"order_line_id"`
	ProductID       uint           `gorm:"not null" json:"product_id"`
	FromWarehouseID uint           `gorm:"not null" json:"from_warehouse_id"`
	ToWarehouseID   uint           `gorm:"not null" json:"to_warehouse_id"`
	Quantity        int            `gorm:"not null" json:"quantity"`
	Status          DocumentStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedBy       string         `gorm:"size:100" json:"created_by"`
	DispatchedAt    *time.Time     `json:"dispatched_at,omitempty"`
	ReceivedAt      *time.Time     `json:"received_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// DeliveryNote accompanies a shipment; its completion event is the
// only thing that moves an order to DELIVERED.
type DeliveryNote struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	NoteNumber  string         `gorm:"uniqueIndex;not null;size:50" json:"note_number"`
	OrderID     uint           `gorm:"not null;index" json:"order_id"`
	Status      DocumentStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedBy   string         `gorm:"size:100" json:"created_by"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PackingList itemizes the cartons of a shipment
type PackingList struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ListNumber string         `gorm:"uniqueIndex;not null;size:50" json:"list_number"`
	OrderID    uint           `gorm:"not null;index" json:"order_id"`
	Status     DocumentStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedBy  string         `gorm:"size:100" json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TaxInvoice is issued after delivery; totals are carried over from
// the order lines, pricing itself is settled upstream.
type TaxInvoice struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InvoiceNumber string          `gorm:"uniqueIndex;not null;size:50" json:"invoice_number"`
	OrderID       uint            `gorm:"not null;index" json:"order_id"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Status        DocumentStatus  `gorm:"not null;default:'pending'" json:"status"`
	CreatedBy     string          `gorm:"size:100" json:"created_by"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName overrides
func (PickingSlip) TableName() string     { return "picking_slips" }
func (PickingSlipLine) TableName() string { return "picking_slip_lines" }
func (JobCard) TableName() string         { return "job_cards" }
func (TransferRequest) TableName() string { return "transfer_requests" }
func (DeliveryNote) TableName() string    { return "delivery_notes" }
func (PackingList) TableName() string     { return "packing_lists" }
func (TaxInvoice) TableName() string      { return "tax_invoices" }
