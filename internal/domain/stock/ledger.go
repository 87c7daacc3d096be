// internal/domain/stock/ledger.go
package stock

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the durable store of per-(product, warehouse) counters and
// the append-only movement log. Everything else reads and writes stock
// through it. Each public call runs in its own transaction; Tx
// variants compose into a caller's transaction.
type Ledger struct {
	db     *gorm.DB
	config *config.Config
	log    *logrus.Logger
}

// NewLedger creates a new stock ledger
func NewLedger(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *Ledger {
	return &Ledger{
		db:     db,
		config: cfg,
		log:    log,
	}
}

// ApplyMovementRequest represents a realized stock change
type ApplyMovementRequest struct {
	ProductID     uint         `json:"product_id" binding:"required"`
	WarehouseID   uint         `json:"warehouse_id" binding:"required"`
	Type          MovementType `json:"type" binding:"required"`
	Quantity      int          `json:"quantity" binding:"required"`
	ReferenceType string       `json:"reference_type,omitempty"`
	ReferenceID   uint         `json:"reference_id,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

// WAREHOUSES

// CreateWarehouseRequest represents warehouse creation data
type CreateWarehouseRequest struct {
	Name      string `json:"name" binding:"required"`
	Code      string `json:"code" binding:"required"`
	City      string `json:"city"`
	IsDefault bool   `json:"is_default"`
}

// CreateWarehouse creates a new warehouse
func (s *Ledger) CreateWarehouse(req *CreateWarehouseRequest) (*Warehouse, error) {
	var existing Warehouse
	if err := s.db.Where("code = ?", req.Code).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("warehouse with code '%s' already exists", req.Code)
	}

	if req.IsDefault {
		s.db.Model(&Warehouse{}).Where("is_default = ?", true).Update("is_default", false)
	}

	warehouse := &Warehouse{
		Name:      req.Name,
		Code:      req.Code,
		City:      req.City,
		IsDefault: req.IsDefault,
		IsActive:  true,
	}

	if err := s.db.Create(warehouse).Error; err != nil {
		return nil, fmt.Errorf("failed to create warehouse: %w", err)
	}

	return warehouse, nil
}

// GetWarehouses retrieves all active warehouses
func (s *Ledger) GetWarehouses() ([]Warehouse, error) {
	var warehouses []Warehouse
	if err := s.db.Where("is_active = ?", true).Find(&warehouses).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve warehouses: %w", err)
	}
	return warehouses, nil
}

// GetDefaultWarehouse gets the default warehouse
func (s *Ledger) GetDefaultWarehouse() (*Warehouse, error) {
	var warehouse Warehouse
	if err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&warehouse).Error; err != nil {
		return nil, fmt.Errorf("default warehouse not found")
	}
	return &warehouse, nil
}

// LEVELS

// GetLevel gets the current counters for a product at a warehouse
func (s *Ledger) GetLevel(productID, warehouseID uint) (*StockLevel, error) {
	var level StockLevel
	err := s.db.Preload("Warehouse").
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&level).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve stock level: %w", err)
	}
	return &level, nil
}

// ListLevels lists counters for a product across warehouses, or for a
// whole warehouse when productID is zero.
func (s *Ledger) ListLevels(productID, warehouseID uint) ([]StockLevel, error) {
	query := s.db.Preload("Warehouse").Model(&StockLevel{})
	if productID > 0 {
		query = query.Where("product_id = ?", productID)
	}
	if warehouseID > 0 {
		query = query.Where("warehouse_id = ?", warehouseID)
	}

	var levels []StockLevel
	if err := query.Order("product_id, warehouse_id").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("failed to list stock levels: %w", err)
	}
	return levels, nil
}

// forUpdate applies SELECT ... FOR UPDATE on dialects that support
// row locks. SQLite serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// EnsureLevelTx fetches the level row for update, creating a zero row
// first if none exists. The returned row is locked until tx commits;
// this row lock is the mutual-exclusion point for all counter math.
func (s *Ledger) EnsureLevelTx(tx *gorm.DB, productID, warehouseID uint) (*StockLevel, error) {
	var level StockLevel
	err := forUpdate(tx).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&level).Error
	if err == gorm.ErrRecordNotFound {
		level = StockLevel{ProductID: productID, WarehouseID: warehouseID}
		if err := tx.Create(&level).Error; err != nil {
			return nil, fmt.Errorf("failed to create stock level: %w", err)
		}
		return &level, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock level: %w", err)
	}
	return &level, nil
}

// MOVEMENTS

// ApplyMovement atomically appends a movement row and updates OnHand
func (s *Ledger) ApplyMovement(req *ApplyMovementRequest, actor string) (*StockLevel, error) {
	var level *StockLevel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		level, err = s.ApplyMovementTx(tx, req, actor)
		return err
	})
	return level, err
}

// ApplyMovementTx applies a movement inside the caller's transaction.
// An outflow that would drive OnHand below HardReserved fails with
// InsufficientStockError: units backing active hard reservations can
// only leave via the workflow that releases the reservation in the
// same transaction, before the movement.
func (s *Ledger) ApplyMovementTx(tx *gorm.DB, req *ApplyMovementRequest, actor string) (*StockLevel, error) {
	if req.Quantity <= 0 {
		return nil, errs.Validation("quantity", "must be positive")
	}
	if !req.Type.IsValid() {
		return nil, errs.Validation("type", fmt.Sprintf("unknown movement type %q", req.Type))
	}

	level, err := s.EnsureLevelTx(tx, req.ProductID, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	before := level.OnHand
	delta := req.Type.Direction() * req.Quantity
	after := before + delta

	if delta < 0 && after < level.HardReserved {
		return nil, &errs.InsufficientStockError{
			ProductID:   req.ProductID,
			WarehouseID: req.WarehouseID,
			Requested:   req.Quantity,
			Available:   level.AvailableToPromise(),
		}
	}

	level.OnHand = after
	if err := tx.Save(level).Error; err != nil {
		return nil, fmt.Errorf("failed to update stock level: %w", err)
	}

	movement := &StockMovement{
		StockLevelID:  level.ID,
		ProductID:     req.ProductID,
		WarehouseID:   req.WarehouseID,
		Type:          req.Type,
		Quantity:      req.Quantity,
		OnHandBefore:  before,
		OnHandAfter:   after,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Notes:         req.Notes,
		CreatedBy:     actor,
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}

	if delta < 0 && level.IsLowStock() {
		s.log.WithFields(logrus.Fields{
			"product_id":   req.ProductID,
			"warehouse_id": req.WarehouseID,
			"atp":          level.AvailableToPromise(),
			"reorder":      level.ReorderLevel,
		}).Warn("stock level at or below reorder threshold")
	}

	return level, nil
}

// AdjustReservedCountersTx is the only entry point that changes
// SoftReserved/HardReserved. It is called exclusively by the
// reservation manager, inside the same transaction as the reservation
// row write.
func (s *Ledger) AdjustReservedCountersTx(tx *gorm.DB, productID, warehouseID uint, softDelta, hardDelta int) (*StockLevel, error) {
	level, err := s.EnsureLevelTx(tx, productID, warehouseID)
	if err != nil {
		return nil, err
	}

	newHard := level.HardReserved + hardDelta
	if hardDelta > 0 && newHard > level.OnHand {
		return nil, &errs.InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Requested:   hardDelta,
			Available:   level.AvailableToPromise(),
		}
	}
	if newHard < 0 {
		// Should be unreachable: releases are gated on the row being
		// active. Clamp and record the inconsistency.
		s.log.WithFields(logrus.Fields{
			"product_id":   productID,
			"warehouse_id": warehouseID,
			"hard_delta":   hardDelta,
		}).Error("hard reserved counter would go negative, clamping to zero")
		newHard = 0
	}

	newSoft := level.SoftReserved + softDelta
	if newSoft < 0 {
		s.log.WithFields(logrus.Fields{
			"product_id":   productID,
			"warehouse_id": warehouseID,
			"soft_delta":   softDelta,
		}).Error("soft reserved counter would go negative, clamping to zero")
		newSoft = 0
	}

	level.HardReserved = newHard
	level.SoftReserved = newSoft
	if err := tx.Save(level).Error; err != nil {
		return nil, fmt.Errorf("failed to update reserved counters: %w", err)
	}
	return level, nil
}

// ReceivePurchase books inbound stock from a purchase order: one
// RECEIPT movement plus an OnOrder decrement in the same transaction.
func (s *Ledger) ReceivePurchase(productID, warehouseID uint, quantity int, purchaseOrderID uint, actor string) (*StockLevel, error) {
	var level *StockLevel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		level, err = s.ApplyMovementTx(tx, &ApplyMovementRequest{
			ProductID:     productID,
			WarehouseID:   warehouseID,
			Type:          MovementReceipt,
			Quantity:      quantity,
			ReferenceType: "PurchaseOrder",
			ReferenceID:   purchaseOrderID,
		}, actor)
		if err != nil {
			return err
		}

		level.OnOrder -= quantity
		if level.OnOrder < 0 {
			level.OnOrder = 0
		}
		return tx.Save(level).Error
	})
	return level, err
}

// Adjust books a signed stocktake correction. Positive quantities
// become ADJUSTMENT_IN, negative ADJUSTMENT_OUT.
func (s *Ledger) Adjust(productID, warehouseID uint, quantity int, notes, actor string) (*StockLevel, error) {
	if quantity == 0 {
		return nil, errs.Validation("quantity", "must be non-zero")
	}
	movementType := MovementAdjustmentIn
	if quantity < 0 {
		movementType = MovementAdjustmentOut
		quantity = -quantity
	}
	return s.ApplyMovement(&ApplyMovementRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Type:        movementType,
		Quantity:    quantity,
		Notes:       notes,
	}, actor)
}

// ListMovements returns the movement log for a product, newest first
func (s *Ledger) ListMovements(productID, warehouseID uint, limit int) ([]StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.Model(&StockMovement{}).Where("product_id = ?", productID)
	if warehouseID > 0 {
		query = query.Where("warehouse_id = ?", warehouseID)
	}

	var movements []StockMovement
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return movements, nil
}
