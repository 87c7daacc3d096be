// internal/domain/order/service.go
package order

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/product"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"github.com/your-org/erp-backend/internal/pkg/txutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service drives the sales order lifecycle. All status changes go
// through applyTransitionTx; reservation writes go through the
// reservation manager, never by touching counters here.
type Service struct {
	db           *gorm.DB
	ledger       *stock.Ledger
	reservations *reservation.Manager
	products     *product.Service
	config       *config.Config
	log          *logrus.Logger
}

// NewService creates a new order service
func NewService(db *gorm.DB, ledger *stock.Ledger, reservations *reservation.Manager, products *product.Service, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		products:     products,
		config:       cfg,
		log:          log,
	}
}

// LineRequest represents one requested product on a new order
type LineRequest struct {
	ProductID   uint `json:"product_id" binding:"required"`
	WarehouseID uint `json:"warehouse_id"`
	Quantity    int  `json:"quantity" binding:"required"`
}

// CreateOrderRequest represents order creation data
type CreateOrderRequest struct {
	CustomerID        uint              `json:"customer_id" binding:"required"`
	WarehouseID       uint              `json:"warehouse_id" binding:"required"`
	FulfillmentPolicy FulfillmentPolicy `json:"fulfillment_policy"`
	Notes             string            `json:"notes,omitempty"`
	Lines             []LineRequest     `json:"lines" binding:"required"`
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page       int    `form:"page,default=1"`
	Limit      int    `form:"limit,default=20"`
	Status     Status `form:"status"`
	CustomerID uint   `form:"customer_id"`
}

// OrderListResponse represents orders with pagination
type OrderListResponse struct {
	Orders     []SalesOrder `json:"orders"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	Total      int64        `json:"total"`
	TotalPages int          `json:"total_pages"`
}

// CreateDraft creates a DRAFT order. No reservations are made yet;
// quotes only ever hold SOFT ones and hard commitment happens at
// confirmation.
func (s *Service) CreateDraft(req *CreateOrderRequest, actor string) (*SalesOrder, error) {
	var order *SalesOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.CreateDraftTx(tx, req, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(order.ID)
}

// CreateDraftTx creates the draft inside the caller's transaction, so
// quote acceptance can convert and release in one atomic step.
func (s *Service) CreateDraftTx(tx *gorm.DB, req *CreateOrderRequest, actor string) (*SalesOrder, error) {
	if len(req.Lines) == 0 {
		return nil, errs.Validation("lines", "order needs at least one line")
	}
	policy := req.FulfillmentPolicy
	if policy == "" {
		policy = ShipPartial
	}
	if !policy.IsValid() {
		return nil, errs.Validation("fulfillment_policy", fmt.Sprintf("unknown policy %q", req.FulfillmentPolicy))
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, errs.Validation("quantity", "must be positive")
		}
	}

	order := SalesOrder{
		CustomerID:        req.CustomerID,
		Status:            StatusDraft,
		FulfillmentPolicy: policy,
		WarehouseID:       req.WarehouseID,
		Notes:             req.Notes,
		CreatedBy:         actor,
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	order.OrderNumber = generateOrderNumber(order.ID)
	if err := tx.Model(&order).Update("order_number", order.OrderNumber).Error; err != nil {
		return nil, fmt.Errorf("failed to set order number: %w", err)
	}

	for i, lr := range req.Lines {
		p, err := s.products.Get(lr.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		warehouseID := lr.WarehouseID
		if warehouseID == 0 {
			warehouseID = req.WarehouseID
		}
		line := SalesOrderLine{
			OrderID:         order.ID,
			LineNo:          i + 1,
			ProductID:       p.ID,
			WarehouseID:     warehouseID,
			SKU:             p.SKU,
			Name:            p.Name,
			QuantityOrdered: lr.Quantity,
			UnitPrice:       p.UnitPrice,
		}
		if err := tx.Create(&line).Error; err != nil {
			return nil, fmt.Errorf("failed to create order line: %w", err)
		}
	}

	history := StatusHistory{
		OrderID:   order.ID,
		Status:    StatusDraft,
		Comment:   "Order created",
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}
	return &order, nil
}

// Confirm moves a DRAFT order to CONFIRMED, creating a SalesOrder-
// scope HARD reservation for every line. Reservations never exceed
// availability; under SHIP_PARTIAL and SALES_DECISION any shortfall
// is recorded as backorder, under SHIP_COMPLETE the whole
// confirmation fails with InsufficientStockError.
func (s *Service) Confirm(orderID uint, actor string) (*SalesOrder, error) {
	err := txutil.WithRetry(s.db, s.log, s.config.Stock.TxRetryLimit, "order-confirm", func(tx *gorm.DB) error {
		order, err := s.lockOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(order.Status, StatusConfirmed); err != nil {
			return err
		}

		var warehouses []stock.Warehouse
		if err := tx.Where("is_active = ?", true).Order("id").Find(&warehouses).Error; err != nil {
			return fmt.Errorf("failed to list warehouses: %w", err)
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			p, err := s.products.Get(line.ProductID)
			if err != nil {
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}

			remaining := line.QuantityOrdered
			madeToOrder := p.FulfillmentClass == product.MadeToOrder
			if !madeToOrder {
				remaining, err = s.reserveLineTx(tx, order, line, warehouses, remaining, actor)
				if err != nil {
					return err
				}
			}

			if remaining > 0 {
				// Made-to-order shortfall is filled by manufacturing,
				// not stock on hand, so it never blocks confirmation.
				if order.FulfillmentPolicy == ShipComplete && !madeToOrder {
					level, _ := s.ledger.GetLevel(line.ProductID, line.WarehouseID)
					available := 0
					if level != nil {
						available = level.AvailableToPromise()
					}
					return &errs.InsufficientStockError{
						ProductID:   line.ProductID,
						WarehouseID: line.WarehouseID,
						Requested:   line.QuantityOrdered,
						Available:   available,
					}
				}
				if err := tx.Model(line).Update("quantity_backorder", remaining).Error; err != nil {
					return fmt.Errorf("failed to record backorder: %w", err)
				}
			}
		}

		return s.applyTransitionTx(tx, order, StatusConfirmed, "Order confirmed", actor)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(orderID)
}

// reserveLineTx places HARD reservations for one line, preferring the
// line's assigned warehouse and spilling over to other active ones.
// Returns the unreservable remainder.
func (s *Service) reserveLineTx(tx *gorm.DB, order *SalesOrder, line *SalesOrderLine, warehouses []stock.Warehouse, remaining int, actor string) (int, error) {
	ordered := make([]uint, 0, len(warehouses))
	ordered = append(ordered, line.WarehouseID)
	for _, w := range warehouses {
		if w.ID != line.WarehouseID {
			ordered = append(ordered, w.ID)
		}
	}

	for _, warehouseID := range ordered {
		if remaining == 0 {
			break
		}
		level, err := s.ledger.EnsureLevelTx(tx, line.ProductID, warehouseID)
		if err != nil {
			return remaining, err
		}
		available := level.AvailableToPromise()
		if available <= 0 {
			continue
		}

		quantity := remaining
		if quantity > available {
			quantity = available
		}
		_, err = s.reservations.ReserveTx(tx, &reservation.ReserveRequest{
			ProductID:      line.ProductID,
			WarehouseID:    warehouseID,
			Quantity:       quantity,
			Type:           reservation.TypeHard,
			ReferenceType:  reservation.RefSalesOrder,
			ReferenceID:    order.ID,
			ReferenceLine:  line.ID,
			IdempotencyKey: fmt.Sprintf("so:%d:line:%d:wh:%d:confirm", order.ID, line.ID, warehouseID),
		}, actor)
		if err != nil {
			return remaining, err
		}
		remaining -= quantity
	}

	return remaining, nil
}

// Hold parks a non-terminal order, remembering where it came from
func (s *Service) Hold(orderID uint, actor, comment string) (*SalesOrder, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == StatusOnHold {
			return &errs.InvalidTransitionError{Entity: "sales order", From: string(order.Status), To: string(StatusOnHold), Reason: "already on hold"}
		}
		if err := ValidateTransition(order.Status, StatusOnHold); err != nil {
			return err
		}
		if err := tx.Model(order).Update("prior_status", order.Status).Error; err != nil {
			return fmt.Errorf("failed to remember prior status: %w", err)
		}
		order.PriorStatus = order.Status
		return s.applyTransitionTx(tx, order, StatusOnHold, comment, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(orderID)
}

// ReleaseHold returns a held order to its prior status
func (s *Service) ReleaseHold(orderID uint, actor, comment string) (*SalesOrder, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusOnHold {
			return &errs.InvalidTransitionError{Entity: "sales order", From: string(order.Status), To: string(order.PriorStatus), Reason: "order is not on hold"}
		}
		target := order.PriorStatus
		if target == "" {
			target = StatusDraft
		}
		return s.applyTransitionTx(tx, order, target, comment, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(orderID)
}

// CancelTx cancels the order's own scope: releases every reservation
// still held at SalesOrder level and moves the status. Downstream
// documents are cancelled by the fulfillment workflows before they
// call in here, so the whole cascade shares one transaction.
func (s *Service) CancelTx(tx *gorm.DB, orderID uint, actor, reason string) error {
	order, err := s.lockOrderTx(tx, orderID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(order.Status, StatusCancelled); err != nil {
		return err
	}

	released, err := s.reservations.ReleaseByReferenceTx(tx, reservation.RefSalesOrder, orderID, actor, "order cancelled: "+reason)
	if err != nil {
		return err
	}
	if released > 0 {
		s.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"released": released,
		}).Info("released order reservations on cancellation")
	}

	comment := "Order cancelled"
	if reason != "" {
		comment = fmt.Sprintf("Order cancelled: %s", reason)
	}
	return s.applyTransitionTx(tx, order, StatusCancelled, comment, actor)
}

// TransitionTx applies a guarded status change inside the caller's
// transaction. Used by the fulfillment workflows for the event-driven
// moves (processing, shipped, delivered, invoiced, closed).
func (s *Service) TransitionTx(tx *gorm.DB, orderID uint, to Status, comment, actor string) error {
	order, err := s.lockOrderTx(tx, orderID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(order.Status, to); err != nil {
		return err
	}
	return s.applyTransitionTx(tx, order, to, comment, actor)
}

// RecordPickTx books picked quantity onto a line and, once every line
// is accounted for, advances the order out of PROCESSING.
func (s *Service) RecordPickTx(tx *gorm.DB, orderID, lineID uint, quantity int, actor string) error {
	var line SalesOrderLine
	if err := tx.Where("id = ? AND order_id = ?", lineID, orderID).First(&line).Error; err != nil {
		return fmt.Errorf("order line not found: %w", err)
	}
	line.QuantityPicked += quantity
	if line.QuantityPicked > line.QuantityOrdered {
		return errs.Validation("quantity", "picked more than ordered")
	}
	line.PendingTransfer = false
	if err := tx.Save(&line).Error; err != nil {
		return fmt.Errorf("failed to update line: %w", err)
	}
	return s.refreshProgressTx(tx, orderID, actor)
}

// AdjustBackorderTx changes a line's backorder counter, e.g. when a
// job card manufactures stock for a made-to-order line.
func (s *Service) AdjustBackorderTx(tx *gorm.DB, lineID uint, delta int) error {
	var line SalesOrderLine
	if err := tx.Where("id = ?", lineID).First(&line).Error; err != nil {
		return fmt.Errorf("order line not found: %w", err)
	}
	line.QuantityBackorder += delta
	if line.QuantityBackorder < 0 {
		line.QuantityBackorder = 0
	}
	if err := tx.Save(&line).Error; err != nil {
		return fmt.Errorf("failed to update backorder: %w", err)
	}
	return nil
}

// ShipTx marks the picked quantities as shipped. Full coverage moves
// the order to SHIPPED, anything still on backorder to
// PARTIALLY_SHIPPED.
func (s *Service) ShipTx(tx *gorm.DB, orderID uint, actor string) (*SalesOrder, error) {
	order, err := s.lockOrderTx(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusReadyToShip && order.Status != StatusPartiallyShipped {
		return nil, &errs.InvalidTransitionError{
			Entity: "sales order",
			From:   string(order.Status),
			To:     string(StatusShipped),
			Reason: s.pendingPickReason(order),
		}
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.QuantityPicked > line.QuantityShipped {
			line.QuantityShipped = line.QuantityPicked
			if err := tx.Save(line).Error; err != nil {
				return nil, fmt.Errorf("failed to update line: %w", err)
			}
		}
	}

	target := StatusShipped
	if !order.FullyShipped() {
		target = StatusPartiallyShipped
	}
	now := time.Now().UTC()
	if err := tx.Model(order).Update("shipped_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to stamp shipped time: %w", err)
	}
	if err := s.applyTransitionTx(tx, order, target, "Goods dispatched", actor); err != nil {
		return nil, err
	}
	return order, nil
}

// refreshProgressTx re-evaluates a PROCESSING order after pick events
func (s *Service) refreshProgressTx(tx *gorm.DB, orderID uint, actor string) error {
	order, err := s.lockOrderTx(tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != StatusProcessing {
		return nil
	}
	if !order.FullyAllocated() {
		return nil
	}
	if order.FulfillmentPolicy == ShipComplete && order.HasBackorder() {
		return nil
	}
	return s.applyTransitionTx(tx, order, StatusReadyToShip, "All lines picked", actor)
}

// QUERIES

// Get retrieves a single order with lines and history
func (s *Service) Get(id uint) (*SalesOrder, error) {
	var order SalesOrder
	result := s.db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no") }).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Where("id = ?", id).
		First(&order)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}
	return &order, nil
}

// List retrieves orders with filtering and pagination
func (s *Service) List(req *OrderListRequest) (*OrderListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.Model(&SalesOrder{}).Preload("Lines")
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.CustomerID > 0 {
		query = query.Where("customer_id = ?", req.CustomerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []SalesOrder
	offset := (req.Page - 1) * req.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.Limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderListResponse{
		Orders:     orders,
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// Internal helpers

func (s *Service) lockOrderTx(tx *gorm.DB, orderID uint) (*SalesOrder, error) {
	var order SalesOrder
	query := tx
	if tx.Dialector.Name() != "sqlite" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "sales_orders"}})
	}
	err := query.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no") }).
		Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// applyTransitionTx writes the new status, its timestamp and a
// history row. Callers validate the move first.
func (s *Service) applyTransitionTx(tx *gorm.DB, order *SalesOrder, to Status, comment, actor string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"status": to}
	switch to {
	case StatusConfirmed:
		updates["confirmed_at"] = now
	case StatusDelivered:
		updates["delivered_at"] = now
	}
	if err := tx.Model(&SalesOrder{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = to

	history := StatusHistory{
		OrderID:   order.ID,
		Status:    to,
		Comment:   comment,
		CreatedBy: actor,
		CreatedAt: now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}
	return nil
}

func (s *Service) pendingPickReason(order *SalesOrder) string {
	pending := 0
	for i := range order.Lines {
		l := &order.Lines[i]
		if l.QuantityPicked+l.QuantityBackorder < l.QuantityOrdered {
			pending++
		}
	}
	if pending > 0 {
		return fmt.Sprintf("%d lines still pending pick", pending)
	}
	return ""
}

func generateOrderNumber(orderID uint) string {
	// Format: SO-YYYYMMDD-XXXXX
	return fmt.Sprintf("SO-%s-%05d", time.Now().Format("20060102"), orderID)
}
