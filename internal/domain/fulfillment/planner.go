// internal/domain/fulfillment/planner.go
package fulfillment

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/product"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"github.com/your-org/erp-backend/internal/pkg/txutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Planner turns a confirmed order into fulfillment documents. Each
// line's SalesOrder-scope reservations are handed to a picking slip,
// job card or transfer request via the reservation manager's Transfer,
// so the quantity is committed to exactly one document at a time.
type Planner struct {
	db           *gorm.DB
	ledger       *stock.Ledger
	reservations *reservation.Manager
	orders       *order.Service
	products     *product.Service
	dispatch     Dispatcher
	config       *config.Config
	log          *logrus.Logger
}

// NewPlanner creates the fulfillment planner. dispatch may be nil
// when no post-commit work is wanted (tests, CLI tooling).
func NewPlanner(db *gorm.DB, ledger *stock.Ledger, reservations *reservation.Manager, orders *order.Service, products *product.Service, dispatch Dispatcher, cfg *config.Config, log *logrus.Logger) *Planner {
	return &Planner{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		orders:       orders,
		products:     products,
		dispatch:     dispatch,
		config:       cfg,
		log:          log,
	}
}

// PlanResult reports what a plan execution produced
type PlanResult struct {
	OrderID            uint   `json:"order_id"`
	PickingSlipIDs     []uint `json:"picking_slip_ids"`
	JobCardIDs         []uint `json:"job_card_ids"`
	TransferRequestIDs []uint `json:"transfer_request_ids"`
	BackorderedLines   []uint `json:"backordered_lines"`
	// Deferred is set when SHIP_COMPLETE cannot yet be satisfied:
	// nothing was created and the reservations stay at order scope.
	Deferred bool `json:"deferred"`
}

func (r *PlanResult) documentsCreated() int {
	return len(r.PickingSlipIDs) + len(r.JobCardIDs) + len(r.TransferRequestIDs)
}

// ExecutePlan plans every line of the order inside one transaction.
// Replaying it is safe: lines whose reservations already moved to a
// document have nothing left at order scope, so nothing is duplicated.
func (p *Planner) ExecutePlan(orderID uint, actor string) (*PlanResult, error) {
	result := &PlanResult{OrderID: orderID}

	err := txutil.WithRetry(p.db, p.log, p.config.Stock.TxRetryLimit, "execute-plan", func(tx *gorm.DB) error {
		*result = PlanResult{OrderID: orderID}

		ord, err := p.lockOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		if ord.Status != order.StatusConfirmed && ord.Status != order.StatusProcessing {
			return &errs.InvalidTransitionError{
				Entity: "sales order",
				From:   string(ord.Status),
				To:     string(order.StatusProcessing),
				Reason: "plan execution needs a confirmed order",
			}
		}

		classes := make(map[uint]product.FulfillmentClass, len(ord.Lines))
		for i := range ord.Lines {
			prod, err := p.products.Get(ord.Lines[i].ProductID)
			if err != nil {
				return fmt.Errorf("line %d: %w", ord.Lines[i].LineNo, err)
			}
			classes[ord.Lines[i].ID] = prod.FulfillmentClass
		}

		// Under SHIP_COMPLETE a stocked shortfall defers the whole
		// plan; made-to-order backorder is satisfied by a job card and
		// does not count as a shortfall.
		if ord.FulfillmentPolicy == order.ShipComplete {
			for i := range ord.Lines {
				line := &ord.Lines[i]
				if line.QuantityBackorder > 0 && classes[line.ID] != product.MadeToOrder {
					result.Deferred = true
					return nil
				}
			}
		}

		active, err := p.reservations.ActiveByReferenceTx(tx, reservation.RefSalesOrder, orderID)
		if err != nil {
			return err
		}
		byLine := make(map[uint][]reservation.StockReservation)
		for _, res := range active {
			byLine[res.ReferenceLine] = append(byLine[res.ReferenceLine], res)
		}

		slips := make(map[uint]*PickingSlip)
		for i := range ord.Lines {
			line := &ord.Lines[i]
			if err := p.planLineTx(tx, ord, line, classes[line.ID], byLine[line.ID], slips, result, actor); err != nil {
				return err
			}
			if line.QuantityBackorder > 0 {
				result.BackorderedLines = append(result.BackorderedLines, line.ID)
			}
		}

		if ord.Status == order.StatusConfirmed && result.documentsCreated() > 0 {
			return p.orders.TransitionTx(tx, orderID, order.StatusProcessing, "Fulfillment plan executed", actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// New slips go to the warehouse floor once the plan is durable.
	if p.dispatch != nil {
		for _, slipID := range result.PickingSlipIDs {
			p.dispatch.Dispatch(DocumentEvent{Kind: EventPickingSlipCreated, DocumentID: slipID, OrderID: orderID})
		}
	}
	return result, nil
}

// planLineTx decides pick, assemble or transfer for one line's
// order-scope reservations, and raises a job card for made-to-order
// backorder.
func (p *Planner) planLineTx(tx *gorm.DB, ord *order.SalesOrder, line *order.SalesOrderLine, class product.FulfillmentClass, lineRes []reservation.StockReservation, slips map[uint]*PickingSlip, result *PlanResult, actor string) error {
	if class.NeedsAssembly() && len(lineRes) > 0 {
		// Reserved finished units still go through the workshop for
		// kitting before they can ship.
		total := 0
		for i := range lineRes {
			total += lineRes[i].Quantity
		}
		card, err := p.createJobCardTx(tx, ord.ID, line, total, "", actor)
		if err != nil {
			return err
		}
		for i := range lineRes {
			if _, err := p.reservations.TransferTx(tx, lineRes[i].ID, reservation.RefJobCard, card.ID, actor); err != nil {
				return err
			}
		}
		result.JobCardIDs = append(result.JobCardIDs, card.ID)
	} else {
		for i := range lineRes {
			res := &lineRes[i]
			if res.WarehouseID == line.WarehouseID {
				slip, err := p.slipForWarehouseTx(tx, ord, res.WarehouseID, slips, result, actor)
				if err != nil {
					return err
				}
				slipLine := PickingSlipLine{
					PickingSlipID: slip.ID,
					OrderLineID:   line.ID,
					ProductID:     line.ProductID,
					SKU:           line.SKU,
					Quantity:      res.Quantity,
				}
				if err := tx.Create(&slipLine).Error; err != nil {
					return fmt.Errorf("failed to create picking slip line: %w", err)
				}
				if _, err := p.reservations.TransferTx(tx, res.ID, reservation.RefPickingSlip, slip.ID, actor); err != nil {
					return err
				}
			} else {
				request := TransferRequest{
					OrderID:         ord.ID,
					OrderLineID:     line.ID,
					ProductID:       line.ProductID,
					FromWarehouseID: res.WarehouseID,
					ToWarehouseID:   line.WarehouseID,
					Quantity:        res.Quantity,
					Status:          DocPending,
					CreatedBy:       actor,
				}
				if err := tx.Create(&request).Error; err != nil {
					return fmt.Errorf("failed to create transfer request: %w", err)
				}
				request.RequestNumber = docNumber("TR", request.ID)
				if err := tx.Model(&request).Update("request_number", request.RequestNumber).Error; err != nil {
					return fmt.Errorf("failed to set request number: %w", err)
				}
				if _, err := p.reservations.TransferTx(tx, res.ID, reservation.RefTransferRequest, request.ID, actor); err != nil {
					return err
				}
				if err := tx.Model(line).Update("pending_transfer", true).Error; err != nil {
					return fmt.Errorf("failed to flag pending transfer: %w", err)
				}
				result.TransferRequestIDs = append(result.TransferRequestIDs, request.ID)
			}
		}
	}

	// Made-to-order backorder is manufactured, one open card per line.
	if class == product.MadeToOrder && line.QuantityBackorder > 0 {
		var open int64
		err := tx.Model(&JobCard{}).
			Where("order_line_id = ? AND status NOT IN ?", line.ID, []DocumentStatus{DocComplete, DocCancelled}).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("failed to check open job cards: %w", err)
		}
		if open == 0 {
			card, err := p.createJobCardTx(tx, ord.ID, line, line.QuantityBackorder, "made to order", actor)
			if err != nil {
				return err
			}
			result.JobCardIDs = append(result.JobCardIDs, card.ID)
		}
	}

	return nil
}

func (p *Planner) slipForWarehouseTx(tx *gorm.DB, ord *order.SalesOrder, warehouseID uint, slips map[uint]*PickingSlip, result *PlanResult, actor string) (*PickingSlip, error) {
	if slip, ok := slips[warehouseID]; ok {
		return slip, nil
	}
	slip := &PickingSlip{
		OrderID:     ord.ID,
		WarehouseID: warehouseID,
		Status:      DocPending,
		CreatedBy:   actor,
	}
	if err := tx.Create(slip).Error; err != nil {
		return nil, fmt.Errorf("failed to create picking slip: %w", err)
	}
	slip.SlipNumber = docNumber("PS", slip.ID)
	if err := tx.Model(slip).Update("slip_number", slip.SlipNumber).Error; err != nil {
		return nil, fmt.Errorf("failed to set slip number: %w", err)
	}
	slips[warehouseID] = slip
	result.PickingSlipIDs = append(result.PickingSlipIDs, slip.ID)
	return slip, nil
}

func (p *Planner) createJobCardTx(tx *gorm.DB, orderID uint, line *order.SalesOrderLine, quantity int, notes, actor string) (*JobCard, error) {
	card := &JobCard{
		OrderID:     orderID,
		OrderLineID: line.ID,
		ProductID:   line.ProductID,
		WarehouseID: line.WarehouseID,
		Quantity:    quantity,
		Status:      DocPending,
		Notes:       notes,
		CreatedBy:   actor,
	}
	if err := tx.Create(card).Error; err != nil {
		return nil, fmt.Errorf("failed to create job card: %w", err)
	}
	card.CardNumber = docNumber("JC", card.ID)
	if err := tx.Model(card).Update("card_number", card.CardNumber).Error; err != nil {
		return nil, fmt.Errorf("failed to set card number: %w", err)
	}
	return card, nil
}

func (p *Planner) lockOrderTx(tx *gorm.DB, orderID uint) (*order.SalesOrder, error) {
	query := tx
	if tx.Dialector.Name() != "sqlite" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "sales_orders"}})
	}
	var ord order.SalesOrder
	err := query.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no") }).
		Where("id = ?", orderID).First(&ord).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &ord, nil
}

func docNumber(prefix string, id uint) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, time.Now().Format("20060102"), id)
}
