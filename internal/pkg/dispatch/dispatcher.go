// internal/pkg/dispatch/dispatcher.go
// Package dispatch turns post-commit document events into rendered
// documents and customer notifications. Delivery is at least once:
// a Redis SETNX key suppresses duplicate sends for replayed events,
// and the key is dropped again when a send fails so the next replay
// retries it.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/customer"
	"github.com/your-org/erp-backend/internal/domain/fulfillment"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/infrastructure/database/redis"
	"github.com/your-org/erp-backend/internal/pkg/email"
	"github.com/your-org/erp-backend/internal/pkg/pdf"
)

// dedupeTTL bounds how long a processed event blocks replays.
const dedupeTTL = 24 * time.Hour

// Dispatcher implements fulfillment.Dispatcher
type Dispatcher struct {
	db     *gorm.DB
	cache  *redis.Client
	pdf    *pdf.Service
	email  *email.EmailService
	config *config.Config
	log    *logrus.Logger
}

// New creates a document dispatcher. cache may be nil, in which case
// every event is processed without deduplication.
func New(db *gorm.DB, cache *redis.Client, pdfService *pdf.Service, emailService *email.EmailService, cfg *config.Config, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		cache:  cache,
		pdf:    pdfService,
		email:  emailService,
		config: cfg,
		log:    log,
	}
}

// Dispatch processes one document event. It runs after the
// originating transaction committed, so failures here never roll back
// stock or order state; they are logged and retried on the next replay.
func (d *Dispatcher) Dispatch(event fulfillment.DocumentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := fmt.Sprintf("dispatch:%s:%d", event.Kind, event.DocumentID)

	if d.cache != nil {
		claimed, err := d.cache.SetNX(ctx, key, uuid.New().String(), dedupeTTL)
		if err != nil {
			d.log.WithError(err).WithField("key", key).Warn("Dedupe check failed, processing anyway")
		} else if !claimed {
			d.log.WithField("key", key).Debug("Event already dispatched, skipping")
			return
		}
	}

	var err error
	switch event.Kind {
	case fulfillment.EventPickingSlipCreated:
		err = d.handlePickingSlipCreated(ctx, event)
	case fulfillment.EventOrderShipped:
		err = d.handleOrderShipped(ctx, event)
	case fulfillment.EventInvoiceIssued:
		err = d.handleInvoiceIssued(ctx, event)
	case fulfillment.EventDeliveryNoteIssued:
		// The shipment email already references the delivery note.
		return
	default:
		d.log.WithField("kind", event.Kind).Warn("Unknown event kind")
		return
	}

	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"kind":        event.Kind,
			"document_id": event.DocumentID,
			"order_id":    event.OrderID,
		}).Error("Failed to dispatch document event")

		// Free the claim so a replay can retry the send.
		if d.cache != nil {
			if delErr := d.cache.Del(ctx, key); delErr != nil {
				d.log.WithError(delErr).WithField("key", key).Warn("Failed to release dedupe key")
			}
		}
	}
}

func (d *Dispatcher) handlePickingSlipCreated(ctx context.Context, event fulfillment.DocumentEvent) error {
	var slip fulfillment.PickingSlip
	if err := d.db.Preload("Lines").First(&slip, event.DocumentID).Error; err != nil {
		return fmt.Errorf("failed to load picking slip %d: %w", event.DocumentID, err)
	}

	so, err := d.loadOrder(event.OrderID)
	if err != nil {
		return err
	}

	doc, err := d.pdf.GeneratePickingSlip(&slip, so)
	if err != nil {
		return fmt.Errorf("failed to render picking slip %s: %w", slip.SlipNumber, err)
	}

	var wh stock.Warehouse
	if err := d.db.First(&wh, slip.WarehouseID).Error; err != nil {
		return fmt.Errorf("failed to load warehouse %d: %w", slip.WarehouseID, err)
	}

	// Warehouse copies go to the company operations address.
	return d.email.SendPickingSlipNotification(ctx, d.config.App.CompanyEmail,
		email.PickingSlipNotificationData{
			SlipNumber:  slip.SlipNumber,
			OrderNumber: so.OrderNumber,
			Warehouse:   wh.Name,
		},
		email.Attachment{
			Filename:    slip.SlipNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        doc.Bytes(),
		})
}

func (d *Dispatcher) handleOrderShipped(ctx context.Context, event fulfillment.DocumentEvent) error {
	so, err := d.loadOrder(event.OrderID)
	if err != nil {
		return err
	}

	cust, err := d.loadCustomer(so.CustomerID)
	if err != nil {
		return err
	}
	if cust.Email == "" {
		d.log.WithField("customer_id", cust.ID).Info("Customer has no email, skipping shipment notification")
		return nil
	}

	var note fulfillment.DeliveryNote
	if err := d.db.First(&note, event.DocumentID).Error; err != nil {
		return fmt.Errorf("failed to load delivery note %d: %w", event.DocumentID, err)
	}

	shipped := time.Now()
	if so.ShippedAt != nil {
		shipped = *so.ShippedAt
	}

	return d.email.SendShipmentNotification(ctx, cust.Email, email.ShipmentNotificationData{
		CustomerName: cust.Name,
		OrderNumber:  so.OrderNumber,
		NoteNumber:   note.NoteNumber,
		ShippedDate:  shipped.Format("January 2, 2006"),
	})
}

func (d *Dispatcher) handleInvoiceIssued(ctx context.Context, event fulfillment.DocumentEvent) error {
	var inv fulfillment.TaxInvoice
	if err := d.db.First(&inv, event.DocumentID).Error; err != nil {
		return fmt.Errorf("failed to load tax invoice %d: %w", event.DocumentID, err)
	}

	so, err := d.loadOrder(event.OrderID)
	if err != nil {
		return err
	}

	cust, err := d.loadCustomer(so.CustomerID)
	if err != nil {
		return err
	}
	if cust.Email == "" {
		d.log.WithField("customer_id", cust.ID).Info("Customer has no email, skipping invoice notification")
		return nil
	}

	doc, err := d.pdf.GenerateTaxInvoice(&inv, so)
	if err != nil {
		return fmt.Errorf("failed to render invoice %s: %w", inv.InvoiceNumber, err)
	}

	return d.email.SendInvoiceNotification(ctx, cust.Email,
		email.InvoiceNotificationData{
			CustomerName:  cust.Name,
			OrderNumber:   so.OrderNumber,
			InvoiceNumber: inv.InvoiceNumber,
			InvoiceTotal:  inv.Total.StringFixed(2),
		},
		email.Attachment{
			Filename:    inv.InvoiceNumber + ".pdf",
			ContentType: "application/pdf",
			Data:        doc.Bytes(),
		})
}

func (d *Dispatcher) loadOrder(id uint) (*order.SalesOrder, error) {
	var so order.SalesOrder
	if err := d.db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no ASC")
	}).First(&so, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return &so, nil
}

func (d *Dispatcher) loadCustomer(id uint) (*customer.Customer, error) {
	var cust customer.Customer
	if err := d.db.First(&cust, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	return &cust, nil
}
