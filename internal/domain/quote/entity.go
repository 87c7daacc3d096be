// internal/domain/quote/entity.go
package quote

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status represents the quote status
type Status string

const (
	StatusDraft    Status = "draft"
	StatusIssued   Status = "issued"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Quote is a priced offer to a customer. An active quote holds SOFT
// reservations so the sales team sees realistic availability; those
// holds expire on their own and the quote itself stays open.
type Quote struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	QuoteNumber string `gorm:"uniqueIndex;not null;size:50" json:"quote_number"`
	CustomerID  uint   `gorm:"not null;index" json:"customer_id"`
	Status      Status `gorm:"not null;default:'draft'" json:"status"`
	WarehouseID uint   `gorm:"not null" json:"warehouse_id"`
	// SalesOrderID is set once the quote is accepted.
	SalesOrderID *uint          `json:"sales_order_id,omitempty"`
	Notes        string         `gorm:"type:text" json:"notes"`
	CreatedBy    string         `gorm:"size:100" json:"created_by"`
	AcceptedAt   *time.Time     `json:"accepted_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Lines []QuoteLine `gorm:"foreignKey:QuoteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lines"`
}

// QuoteLine is one product on a quote
type QuoteLine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	QuoteID   uint            `gorm:"not null;index" json:"quote_id"`
	LineNo    int             `gorm:"not null" json:"line_no"`
	ProductID uint            `gorm:"not null;index" json:"product_id"`
	SKU       string          `gorm:"not null;size:100" json:"sku"`
	Name      string          `gorm:"not null;size:255" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName overrides
func (Quote) TableName() string     { return "quotes" }
func (QuoteLine) TableName() string { return "quote_lines" }

// IsOpen reports whether the quote can still be edited or accepted
func (q *Quote) IsOpen() bool {
	return q.Status == StatusDraft || q.Status == StatusIssued
}

// Total returns the quoted amount across lines
func (q *Quote) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range q.Lines {
		l := &q.Lines[i]
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}
