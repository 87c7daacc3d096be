// internal/domain/customer/entity.go
package customer

import (
	"time"

	"gorm.io/gorm"
)

// Customer represents a trading account that quotes and orders are
// raised against.
type Customer struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Code               string         `gorm:"uniqueIndex;not null;size:20" json:"code"`
	Name               string         `gorm:"not null;size:255" json:"name"`
	Email              string         `gorm:"size:255" json:"email"`
	Phone              string         `gorm:"size:20" json:"phone"`
	DefaultWarehouseID uint           `json:"default_warehouse_id"`
	IsActive           bool           `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Customer) TableName() string { return "customers" }
