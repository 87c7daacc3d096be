// internal/domain/fulfillment/workflows.go
package fulfillment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"github.com/your-org/erp-backend/internal/pkg/txutil"
	"gorm.io/gorm"
)

// EventKind identifies a post-commit dispatch event
type EventKind string

const (
	EventPickingSlipCreated EventKind = "picking_slip_created"
	EventDeliveryNoteIssued EventKind = "delivery_note_issued"
	EventInvoiceIssued      EventKind = "invoice_issued"
	EventOrderShipped       EventKind = "order_shipped"
)

// DocumentEvent is handed to the dispatcher after the transaction
// commits; rendering and notification never run inside it.
type DocumentEvent struct {
	Kind       EventKind `json:"kind"`
	DocumentID uint      `json:"document_id"`
	OrderID    uint      `json:"order_id"`
}

// Dispatcher receives document events post-commit, at least once
type Dispatcher interface {
	Dispatch(event DocumentEvent)
}

// Workflows drives the fulfillment documents through their small state
// machines and feeds completion events back into the order lifecycle.
// Every completion or cancellation releases the document's own
// reservations in the same transaction.
type Workflows struct {
	db           *gorm.DB
	ledger       *stock.Ledger
	reservations *reservation.Manager
	orders       *order.Service
	dispatch     Dispatcher
	config       *config.Config
	log          *logrus.Logger
}

// NewWorkflows creates the document workflow service. dispatch may be
// nil when no post-commit work is wanted (tests, CLI tooling).
func NewWorkflows(db *gorm.DB, ledger *stock.Ledger, reservations *reservation.Manager, orders *order.Service, dispatch Dispatcher, cfg *config.Config, log *logrus.Logger) *Workflows {
	return &Workflows{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		orders:       orders,
		dispatch:     dispatch,
		config:       cfg,
		log:          log,
	}
}

func (w *Workflows) notify(kind EventKind, documentID, orderID uint) {
	if w.dispatch == nil {
		return
	}
	w.dispatch.Dispatch(DocumentEvent{Kind: kind, DocumentID: documentID, OrderID: orderID})
}

// PICKING SLIPS

// StartPicking moves a slip onto the floor
func (w *Workflows) StartPicking(slipID uint, actor string) (*PickingSlip, error) {
	var slip PickingSlip
	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Lines").First(&slip, slipID).Error; err != nil {
			return notFoundOr(err, "picking slip")
		}
		if err := validateDocTransition("picking slip", slip.Status, DocInProgress); err != nil {
			return err
		}
		now := time.Now().UTC()
		slip.Status = DocInProgress
		slip.StartedAt = &now
		return tx.Model(&slip).Updates(map[string]interface{}{"status": DocInProgress, "started_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &slip, nil
}

// CompletePickingSlip books the physical pick: the slip's reservations
// release, the ISSUE movements post, and the order lines record their
// picked quantities, all in one transaction.
func (w *Workflows) CompletePickingSlip(slipID uint, actor string) (*PickingSlip, error) {
	var slip PickingSlip
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "complete-picking-slip", func(tx *gorm.DB) error {
		if err := tx.Preload("Lines").First(&slip, slipID).Error; err != nil {
			return notFoundOr(err, "picking slip")
		}
		if err := validateDocTransition("picking slip", slip.Status, DocComplete); err != nil {
			return err
		}

		active, err := w.reservations.ActiveByReferenceTx(tx, reservation.RefPickingSlip, slip.ID)
		if err != nil {
			return err
		}
		for i := range active {
			res := &active[i]
			if err := w.reservations.ReleaseTx(tx, res.ID, actor, "picking slip complete"); err != nil {
				return err
			}
			_, err := w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
				ProductID:     res.ProductID,
				WarehouseID:   res.WarehouseID,
				Type:          stock.MovementIssue,
				Quantity:      res.Quantity,
				ReferenceType: "PickingSlip",
				ReferenceID:   slip.ID,
			}, actor)
			if err != nil {
				return err
			}
		}

		for i := range slip.Lines {
			line := &slip.Lines[i]
			if err := w.orders.RecordPickTx(tx, slip.OrderID, line.OrderLineID, line.Quantity, actor); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		slip.Status = DocComplete
		slip.CompletedAt = &now
		return tx.Model(&slip).Updates(map[string]interface{}{"status": DocComplete, "completed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &slip, nil
}

// CancelPickingSlip abandons the pick. Reservations release without
// movement and the uncovered quantity returns to backorder so a later
// plan run can recommit it.
func (w *Workflows) CancelPickingSlip(slipID uint, actor, reason string) (*PickingSlip, error) {
	var slip PickingSlip
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "cancel-picking-slip", func(tx *gorm.DB) error {
		if err := tx.Preload("Lines").First(&slip, slipID).Error; err != nil {
			return notFoundOr(err, "picking slip")
		}
		return w.cancelSlipTx(tx, &slip, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return &slip, nil
}

func (w *Workflows) cancelSlipTx(tx *gorm.DB, slip *PickingSlip, actor, reason string) error {
	if err := validateDocTransition("picking slip", slip.Status, DocCancelled); err != nil {
		return err
	}
	if _, err := w.reservations.ReleaseByReferenceTx(tx, reservation.RefPickingSlip, slip.ID, actor, "picking slip cancelled: "+reason); err != nil {
		return err
	}
	for i := range slip.Lines {
		line := &slip.Lines[i]
		if err := w.orders.AdjustBackorderTx(tx, line.OrderLineID, line.Quantity); err != nil {
			return err
		}
	}
	slip.Status = DocCancelled
	return tx.Model(slip).Update("status", DocCancelled).Error
}

// JOB CARDS

// StartJobCard moves a card into the workshop
func (w *Workflows) StartJobCard(cardID uint, actor string) (*JobCard, error) {
	return w.moveJobCard(cardID, DocInProgress)
}

// HoldJobCard parks a card, e.g. waiting on components
func (w *Workflows) HoldJobCard(cardID uint, actor string) (*JobCard, error) {
	return w.moveJobCard(cardID, DocOnHold)
}

// ResumeJobCard returns a held card to the workshop
func (w *Workflows) ResumeJobCard(cardID uint, actor string) (*JobCard, error) {
	return w.moveJobCard(cardID, DocInProgress)
}

func (w *Workflows) moveJobCard(cardID uint, to DocumentStatus) (*JobCard, error) {
	var card JobCard
	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&card, cardID).Error; err != nil {
			return notFoundOr(err, "job card")
		}
		if err := validateDocTransition("job card", card.Status, to); err != nil {
			return err
		}
		card.Status = to
		return tx.Model(&card).Update("status", to).Error
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// CompleteJobCard books the workshop output. A card backed by a
// reservation issues the reserved units; a made-to-order card first
// books the manufactured units in, then issues them to the order and
// clears the line's backorder.
func (w *Workflows) CompleteJobCard(cardID uint, actor string) (*JobCard, error) {
	var card JobCard
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "complete-job-card", func(tx *gorm.DB) error {
		if err := tx.First(&card, cardID).Error; err != nil {
			return notFoundOr(err, "job card")
		}
		if err := validateDocTransition("job card", card.Status, DocComplete); err != nil {
			return err
		}

		active, err := w.reservations.ActiveByReferenceTx(tx, reservation.RefJobCard, card.ID)
		if err != nil {
			return err
		}

		if len(active) > 0 {
			for i := range active {
				res := &active[i]
				if err := w.reservations.ReleaseTx(tx, res.ID, actor, "job card complete"); err != nil {
					return err
				}
				_, err := w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
					ProductID:     res.ProductID,
					WarehouseID:   res.WarehouseID,
					Type:          stock.MovementIssue,
					Quantity:      res.Quantity,
					ReferenceType: "JobCard",
					ReferenceID:   card.ID,
				}, actor)
				if err != nil {
					return err
				}
			}
		} else {
			_, err := w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
				ProductID:     card.ProductID,
				WarehouseID:   card.WarehouseID,
				Type:          stock.MovementManufactureIn,
				Quantity:      card.Quantity,
				ReferenceType: "JobCard",
				ReferenceID:   card.ID,
			}, actor)
			if err != nil {
				return err
			}
			_, err = w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
				ProductID:     card.ProductID,
				WarehouseID:   card.WarehouseID,
				Type:          stock.MovementIssue,
				Quantity:      card.Quantity,
				ReferenceType: "JobCard",
				ReferenceID:   card.ID,
			}, actor)
			if err != nil {
				return err
			}
			if err := w.orders.AdjustBackorderTx(tx, card.OrderLineID, -card.Quantity); err != nil {
				return err
			}
		}

		if err := w.orders.RecordPickTx(tx, card.OrderID, card.OrderLineID, card.Quantity, actor); err != nil {
			return err
		}

		now := time.Now().UTC()
		card.Status = DocComplete
		card.CompletedAt = &now
		return tx.Model(&card).Updates(map[string]interface{}{"status": DocComplete, "completed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// CancelJobCard abandons the work. Reserved cards return their
// quantity to backorder; made-to-order cards leave the backorder as
// it already stands.
func (w *Workflows) CancelJobCard(cardID uint, actor, reason string) (*JobCard, error) {
	var card JobCard
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "cancel-job-card", func(tx *gorm.DB) error {
		if err := tx.First(&card, cardID).Error; err != nil {
			return notFoundOr(err, "job card")
		}
		return w.cancelJobCardTx(tx, &card, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (w *Workflows) cancelJobCardTx(tx *gorm.DB, card *JobCard, actor, reason string) error {
	if err := validateDocTransition("job card", card.Status, DocCancelled); err != nil {
		return err
	}
	released, err := w.reservations.ReleaseByReferenceTx(tx, reservation.RefJobCard, card.ID, actor, "job card cancelled: "+reason)
	if err != nil {
		return err
	}
	if released > 0 {
		if err := w.orders.AdjustBackorderTx(tx, card.OrderLineID, card.Quantity); err != nil {
			return err
		}
	}
	card.Status = DocCancelled
	return tx.Model(card).Update("status", DocCancelled).Error
}

// TRANSFER REQUESTS

// DispatchTransfer puts the stock on the truck: the source
// reservation releases and the TRANSFER_OUT movement posts together.
func (w *Workflows) DispatchTransfer(requestID uint, actor string) (*TransferRequest, error) {
	var request TransferRequest
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "dispatch-transfer", func(tx *gorm.DB) error {
		if err := tx.First(&request, requestID).Error; err != nil {
			return notFoundOr(err, "transfer request")
		}
		if err := validateDocTransition("transfer request", request.Status, DocInProgress); err != nil {
			return err
		}

		active, err := w.reservations.ActiveByReferenceTx(tx, reservation.RefTransferRequest, request.ID)
		if err != nil {
			return err
		}
		for i := range active {
			res := &active[i]
			if err := w.reservations.ReleaseTx(tx, res.ID, actor, "transfer dispatched"); err != nil {
				return err
			}
			_, err := w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
				ProductID:     res.ProductID,
				WarehouseID:   res.WarehouseID,
				Type:          stock.MovementTransferOut,
				Quantity:      res.Quantity,
				ReferenceType: "TransferRequest",
				ReferenceID:   request.ID,
			}, actor)
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		request.Status = DocInProgress
		request.DispatchedAt = &now
		return tx.Model(&request).Updates(map[string]interface{}{"status": DocInProgress, "dispatched_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ReceiveTransfer books the stock in at the destination and
// re-commits it to the order there, so the next plan run can raise a
// picking slip at the line's own warehouse.
func (w *Workflows) ReceiveTransfer(requestID uint, actor string) (*TransferRequest, error) {
	var request TransferRequest
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "receive-transfer", func(tx *gorm.DB) error {
		if err := tx.First(&request, requestID).Error; err != nil {
			return notFoundOr(err, "transfer request")
		}
		if request.Status != DocInProgress {
			return &errs.InvalidTransitionError{
				Entity: "transfer request",
				From:   string(request.Status),
				To:     string(DocComplete),
				Reason: "transfer has not been dispatched",
			}
		}

		_, err := w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
			ProductID:     request.ProductID,
			WarehouseID:   request.ToWarehouseID,
			Type:          stock.MovementTransferIn,
			Quantity:      request.Quantity,
			ReferenceType: "TransferRequest",
			ReferenceID:   request.ID,
		}, actor)
		if err != nil {
			return err
		}

		_, err = w.reservations.ReserveTx(tx, &reservation.ReserveRequest{
			ProductID:      request.ProductID,
			WarehouseID:    request.ToWarehouseID,
			Quantity:       request.Quantity,
			Type:           reservation.TypeHard,
			ReferenceType:  reservation.RefSalesOrder,
			ReferenceID:    request.OrderID,
			ReferenceLine:  request.OrderLineID,
			IdempotencyKey: fmt.Sprintf("tr:%d:receive", request.ID),
		}, actor)
		if err != nil {
			return err
		}

		var line order.SalesOrderLine
		if err := tx.First(&line, request.OrderLineID).Error; err != nil {
			return fmt.Errorf("order line not found: %w", err)
		}
		if err := tx.Model(&line).Update("pending_transfer", false).Error; err != nil {
			return fmt.Errorf("failed to clear pending transfer: %w", err)
		}

		now := time.Now().UTC()
		request.Status = DocComplete
		request.ReceivedAt = &now
		return tx.Model(&request).Updates(map[string]interface{}{"status": DocComplete, "received_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// CancelTransfer abandons the move. Stock already on the truck is
// booked back in at the source; either way the quantity returns to
// backorder.
func (w *Workflows) CancelTransfer(requestID uint, actor, reason string) (*TransferRequest, error) {
	var request TransferRequest
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "cancel-transfer", func(tx *gorm.DB) error {
		if err := tx.First(&request, requestID).Error; err != nil {
			return notFoundOr(err, "transfer request")
		}
		return w.cancelTransferTx(tx, &request, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (w *Workflows) cancelTransferTx(tx *gorm.DB, request *TransferRequest, actor, reason string) error {
	if err := validateDocTransition("transfer request", request.Status, DocCancelled); err != nil {
		return err
	}

	if _, err := w.reservations.ReleaseByReferenceTx(tx, reservation.RefTransferRequest, request.ID, actor, "transfer cancelled: "+reason); err != nil {
		return err
	}
	if request.DispatchedAt != nil {
		_, err := w.ledger.ApplyMovementTx(tx, &stock.ApplyMovementRequest{
			ProductID:     request.ProductID,
			WarehouseID:   request.FromWarehouseID,
			Type:          stock.MovementTransferIn,
			Quantity:      request.Quantity,
			ReferenceType: "TransferRequest",
			ReferenceID:   request.ID,
			Notes:         "returned after cancelled transfer",
		}, actor)
		if err != nil {
			return err
		}
	}
	if err := w.orders.AdjustBackorderTx(tx, request.OrderLineID, request.Quantity); err != nil {
		return err
	}
	if err := tx.Model(&order.SalesOrderLine{}).Where("id = ?", request.OrderLineID).
		Update("pending_transfer", false).Error; err != nil {
		return fmt.Errorf("failed to clear pending transfer: %w", err)
	}

	request.Status = DocCancelled
	return tx.Model(request).Update("status", DocCancelled).Error
}

// SHIPPING AND CLOSING

// ShipOrder dispatches the picked goods: the order moves to SHIPPED
// or PARTIALLY_SHIPPED and the delivery note and packing list are
// raised in the same transaction. Rendering happens post-commit.
func (w *Workflows) ShipOrder(orderID uint, actor string) (*DeliveryNote, error) {
	var note DeliveryNote
	err := txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "ship-order", func(tx *gorm.DB) error {
		if _, err := w.orders.ShipTx(tx, orderID, actor); err != nil {
			return err
		}

		note = DeliveryNote{OrderID: orderID, Status: DocPending, CreatedBy: actor}
		if err := tx.Create(&note).Error; err != nil {
			return fmt.Errorf("failed to create delivery note: %w", err)
		}
		note.NoteNumber = docNumber("DN", note.ID)
		if err := tx.Model(&note).Update("note_number", note.NoteNumber).Error; err != nil {
			return fmt.Errorf("failed to set note number: %w", err)
		}

		list := PackingList{OrderID: orderID, Status: DocComplete, CreatedBy: actor}
		if err := tx.Create(&list).Error; err != nil {
			return fmt.Errorf("failed to create packing list: %w", err)
		}
		list.ListNumber = docNumber("PL", list.ID)
		return tx.Model(&list).Update("list_number", list.ListNumber).Error
	})
	if err != nil {
		return nil, err
	}

	w.notify(EventOrderShipped, note.ID, orderID)
	w.notify(EventDeliveryNoteIssued, note.ID, orderID)
	return &note, nil
}

// ConfirmDelivery completes the delivery note; this event is the only
// path that moves an order to DELIVERED.
func (w *Workflows) ConfirmDelivery(noteID uint, actor string) (*DeliveryNote, error) {
	var note DeliveryNote
	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&note, noteID).Error; err != nil {
			return notFoundOr(err, "delivery note")
		}
		if err := validateDocTransition("delivery note", note.Status, DocComplete); err != nil {
			return err
		}
		if err := w.orders.TransitionTx(tx, note.OrderID, order.StatusDelivered, "Delivery confirmed", actor); err != nil {
			return err
		}
		now := time.Now().UTC()
		note.Status = DocComplete
		note.DeliveredAt = &now
		return tx.Model(&note).Updates(map[string]interface{}{"status": DocComplete, "delivered_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// IssueTaxInvoice raises the invoice for a delivered order
func (w *Workflows) IssueTaxInvoice(orderID uint, actor string) (*TaxInvoice, error) {
	var invoice TaxInvoice
	err := w.db.Transaction(func(tx *gorm.DB) error {
		ord, err := w.orders.Get(orderID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for i := range ord.Lines {
			l := &ord.Lines[i]
			total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.QuantityShipped))))
		}

		if err := w.orders.TransitionTx(tx, orderID, order.StatusInvoiced, "Tax invoice issued", actor); err != nil {
			return err
		}

		now := time.Now().UTC()
		invoice = TaxInvoice{OrderID: orderID, Total: total, Status: DocComplete, CreatedBy: actor, IssuedAt: &now}
		if err := tx.Create(&invoice).Error; err != nil {
			return fmt.Errorf("failed to create tax invoice: %w", err)
		}
		invoice.InvoiceNumber = docNumber("INV", invoice.ID)
		return tx.Model(&invoice).Update("invoice_number", invoice.InvoiceNumber).Error
	})
	if err != nil {
		return nil, err
	}

	w.notify(EventInvoiceIssued, invoice.ID, orderID)
	return &invoice, nil
}

// CloseOrder ends the lifecycle of an invoiced order
func (w *Workflows) CloseOrder(orderID uint, actor string) error {
	return w.db.Transaction(func(tx *gorm.DB) error {
		return w.orders.TransitionTx(tx, orderID, order.StatusClosed, "Order closed", actor)
	})
}

// CancelOrder cascades: every non-terminal downstream document is
// cancelled (releasing its reservations), then the order itself
// cancels and frees its own reservations, all in one transaction.
func (w *Workflows) CancelOrder(orderID uint, actor, reason string) error {
	return txutil.WithRetry(w.db, w.log, w.config.Stock.TxRetryLimit, "cancel-order", func(tx *gorm.DB) error {
		var slips []PickingSlip
		if err := tx.Preload("Lines").Where("order_id = ?", orderID).Find(&slips).Error; err != nil {
			return fmt.Errorf("failed to list picking slips: %w", err)
		}
		for i := range slips {
			if slips[i].Status.IsTerminal() {
				continue
			}
			if err := w.cancelSlipTx(tx, &slips[i], actor, reason); err != nil {
				return err
			}
		}

		var cards []JobCard
		if err := tx.Where("order_id = ?", orderID).Find(&cards).Error; err != nil {
			return fmt.Errorf("failed to list job cards: %w", err)
		}
		for i := range cards {
			if cards[i].Status.IsTerminal() {
				continue
			}
			if err := w.cancelJobCardTx(tx, &cards[i], actor, reason); err != nil {
				return err
			}
		}

		var requests []TransferRequest
		if err := tx.Where("order_id = ?", orderID).Find(&requests).Error; err != nil {
			return fmt.Errorf("failed to list transfer requests: %w", err)
		}
		for i := range requests {
			if requests[i].Status.IsTerminal() {
				continue
			}
			if err := w.cancelTransferTx(tx, &requests[i], actor, reason); err != nil {
				return err
			}
		}

		var notes []DeliveryNote
		if err := tx.Where("order_id = ?", orderID).Find(&notes).Error; err != nil {
			return fmt.Errorf("failed to list delivery notes: %w", err)
		}
		for i := range notes {
			if notes[i].Status.IsTerminal() {
				continue
			}
			if err := tx.Model(&notes[i]).Update("status", DocCancelled).Error; err != nil {
				return fmt.Errorf("failed to cancel delivery note: %w", err)
			}
		}

		return w.orders.CancelTx(tx, orderID, actor, reason)
	})
}

func notFoundOr(err error, entity string) error {
	if err == gorm.ErrRecordNotFound {
		return errs.ErrNotFound
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}
