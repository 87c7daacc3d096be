// internal/domain/quote/service.go
package quote

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/product"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"github.com/your-org/erp-backend/internal/pkg/txutil"
	"gorm.io/gorm"
)

// Service handles quoting. Every line on an open quote is backed by a
// SOFT reservation that expires after the configured TTL; expiry frees
// the stock but leaves the quote itself untouched.
type Service struct {
	db           *gorm.DB
	reservations *reservation.Manager
	orders       *order.Service
	products     *product.Service
	config       *config.Config
	log          *logrus.Logger
}

// NewService creates a new quote service
func NewService(db *gorm.DB, reservations *reservation.Manager, orders *order.Service, products *product.Service, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		db:           db,
		reservations: reservations,
		orders:       orders,
		products:     products,
		config:       cfg,
		log:          log,
	}
}

// QuoteLineRequest represents one requested product on a quote
type QuoteLineRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// CreateQuoteRequest represents quote creation data
type CreateQuoteRequest struct {
	CustomerID  uint               `json:"customer_id" binding:"required"`
	WarehouseID uint               `json:"warehouse_id" binding:"required"`
	Notes       string             `json:"notes,omitempty"`
	Lines       []QuoteLineRequest `json:"lines" binding:"required"`
}

// Create creates a quote and places a soft hold for each line
func (s *Service) Create(req *CreateQuoteRequest, actor string) (*Quote, error) {
	if len(req.Lines) == 0 {
		return nil, errs.Validation("lines", "quote needs at least one line")
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, errs.Validation("quantity", "must be positive")
		}
	}

	var quote Quote
	err := txutil.WithRetry(s.db, s.log, s.config.Stock.TxRetryLimit, "quote-create", func(tx *gorm.DB) error {
		quote = Quote{
			CustomerID:  req.CustomerID,
			Status:      StatusDraft,
			WarehouseID: req.WarehouseID,
			Notes:       req.Notes,
			CreatedBy:   actor,
		}
		if err := tx.Create(&quote).Error; err != nil {
			return fmt.Errorf("failed to create quote: %w", err)
		}
		quote.QuoteNumber = generateQuoteNumber(quote.ID)
		if err := tx.Model(&quote).Update("quote_number", quote.QuoteNumber).Error; err != nil {
			return fmt.Errorf("failed to set quote number: %w", err)
		}

		for i, lr := range req.Lines {
			if err := s.addLineTx(tx, &quote, i+1, lr, actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(quote.ID)
}

// AddLine appends a line to an open quote with its own soft hold
func (s *Service) AddLine(quoteID uint, req *QuoteLineRequest, actor string) (*Quote, error) {
	if req.Quantity <= 0 {
		return nil, errs.Validation("quantity", "must be positive")
	}

	err := txutil.WithRetry(s.db, s.log, s.config.Stock.TxRetryLimit, "quote-add-line", func(tx *gorm.DB) error {
		quote, err := s.loadTx(tx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOpen() {
			return &errs.InvalidTransitionError{
				Entity: "quote",
				From:   string(quote.Status),
				To:     string(quote.Status),
				Reason: "quote is no longer open",
			}
		}
		return s.addLineTx(tx, quote, len(quote.Lines)+1, *req, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(quoteID)
}

func (s *Service) addLineTx(tx *gorm.DB, quote *Quote, lineNo int, lr QuoteLineRequest, actor string) error {
	p, err := s.products.Get(lr.ProductID)
	if err != nil {
		return fmt.Errorf("line %d: %w", lineNo, err)
	}

	line := QuoteLine{
		QuoteID:   quote.ID,
		LineNo:    lineNo,
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		Quantity:  lr.Quantity,
		UnitPrice: p.UnitPrice,
	}
	if err := tx.Create(&line).Error; err != nil {
		return fmt.Errorf("failed to create quote line: %w", err)
	}

	expires := time.Now().UTC().Add(s.config.Stock.SoftReservationTTL)
	_, err = s.reservations.ReserveTx(tx, &reservation.ReserveRequest{
		ProductID:      p.ID,
		WarehouseID:    quote.WarehouseID,
		Quantity:       lr.Quantity,
		Type:           reservation.TypeSoft,
		ReferenceType:  reservation.RefQuote,
		ReferenceID:    quote.ID,
		ReferenceLine:  line.ID,
		ExpiresAt:      &expires,
		IdempotencyKey: fmt.Sprintf("quote:%d:line:%d:hold", quote.ID, line.ID),
	}, actor)
	return err
}

// Issue marks a draft quote as sent to the customer
func (s *Service) Issue(quoteID uint, actor string) (*Quote, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		quote, err := s.loadTx(tx, quoteID)
		if err != nil {
			return err
		}
		if quote.Status != StatusDraft {
			return &errs.InvalidTransitionError{Entity: "quote", From: string(quote.Status), To: string(StatusIssued)}
		}
		return tx.Model(quote).Update("status", StatusIssued).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(quoteID)
}

// Accept converts an open quote into a DRAFT sales order. The quote's
// soft holds are released as superseded in the same transaction; the
// hard commitment is made when the order is confirmed.
func (s *Service) Accept(quoteID uint, policy order.FulfillmentPolicy, actor string) (*order.SalesOrder, error) {
	var created *order.SalesOrder
	err := txutil.WithRetry(s.db, s.log, s.config.Stock.TxRetryLimit, "quote-accept", func(tx *gorm.DB) error {
		quote, err := s.loadTx(tx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOpen() {
			return &errs.InvalidTransitionError{
				Entity: "quote",
				From:   string(quote.Status),
				To:     string(StatusAccepted),
				Reason: "quote is no longer open",
			}
		}

		lines := make([]order.LineRequest, 0, len(quote.Lines))
		for i := range quote.Lines {
			l := &quote.Lines[i]
			lines = append(lines, order.LineRequest{
				ProductID:   l.ProductID,
				WarehouseID: quote.WarehouseID,
				Quantity:    l.Quantity,
			})
		}
		created, err = s.orders.CreateDraftTx(tx, &order.CreateOrderRequest{
			CustomerID:        quote.CustomerID,
			WarehouseID:       quote.WarehouseID,
			FulfillmentPolicy: policy,
			Notes:             quote.Notes,
			Lines:             lines,
		}, actor)
		if err != nil {
			return err
		}

		if _, err := s.reservations.ReleaseByReferenceTx(tx, reservation.RefQuote, quote.ID, actor, "superseded by sales order"); err != nil {
			return err
		}

		now := time.Now().UTC()
		return tx.Model(quote).Updates(map[string]interface{}{
			"status":         StatusAccepted,
			"sales_order_id": created.ID,
			"accepted_at":    now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.orders.Get(created.ID)
}

// Decline closes a quote and frees its holds
func (s *Service) Decline(quoteID uint, actor, reason string) (*Quote, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		quote, err := s.loadTx(tx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOpen() {
			return &errs.InvalidTransitionError{
				Entity: "quote",
				From:   string(quote.Status),
				To:     string(StatusDeclined),
				Reason: "quote is no longer open",
			}
		}
		if _, err := s.reservations.ReleaseByReferenceTx(tx, reservation.RefQuote, quote.ID, actor, "quote declined: "+reason); err != nil {
			return err
		}
		return tx.Model(quote).Update("status", StatusDeclined).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(quoteID)
}

// Get retrieves a quote with its lines
func (s *Service) Get(id uint) (*Quote, error) {
	var quote Quote
	err := s.db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no") }).
		Where("id = ?", id).First(&quote).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve quote: %w", err)
	}
	return &quote, nil
}

// List retrieves quotes for a customer, newest first
func (s *Service) List(customerID uint) ([]Quote, error) {
	query := s.db.Preload("Lines").Model(&Quote{})
	if customerID > 0 {
		query = query.Where("customer_id = ?", customerID)
	}
	var quotes []Quote
	if err := query.Order("created_at DESC").Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, nil
}

func (s *Service) loadTx(tx *gorm.DB, quoteID uint) (*Quote, error) {
	var quote Quote
	err := tx.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no") }).
		Where("id = ?", quoteID).First(&quote).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load quote: %w", err)
	}
	return &quote, nil
}

func generateQuoteNumber(quoteID uint) string {
	// Format: QT-YYYYMMDD-XXXXX
	return fmt.Sprintf("QT-%s-%05d", time.Now().Format("20060102"), quoteID)
}
