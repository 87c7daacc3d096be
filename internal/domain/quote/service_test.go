// internal/domain/quote/service_test.go
package quote

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/product"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	db           *gorm.DB
	ledger       *stock.Ledger
	reservations *reservation.Manager
	orders       *order.Service
	service      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&stock.Warehouse{}, &stock.StockLevel{}, &stock.StockMovement{},
		&reservation.StockReservation{}, &product.Product{},
		&order.SalesOrder{}, &order.SalesOrderLine{}, &order.StatusHistory{},
		&Quote{}, &QuoteLine{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.Config{Stock: config.StockConfig{TxRetryLimit: 3, SoftReservationTTL: 72 * time.Hour}}
	ledger := stock.NewLedger(db, cfg, log)
	reservations := reservation.NewManager(db, ledger, cfg, log)
	products := product.NewService(db, cfg)
	orders := order.NewService(db, ledger, reservations, products, cfg, log)

	f := &fixture{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		orders:       orders,
		service:      NewService(db, reservations, orders, products, cfg, log),
	}

	warehouse := stock.Warehouse{Name: "Johannesburg", Code: "JHB", IsActive: true, IsDefault: true}
	if err := db.Create(&warehouse).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}
	p := product.Product{SKU: "WIDGET", Name: "Widget", UnitPrice: decimal.NewFromInt(100), FulfillmentClass: product.Stocked, IsActive: true}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := ledger.ApplyMovement(&stock.ApplyMovementRequest{
		ProductID: 1, WarehouseID: 1, Type: stock.MovementReceipt, Quantity: 20,
	}, "tester"); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return f
}

func (f *fixture) softReserved(t *testing.T) int {
	t.Helper()
	level, err := f.ledger.GetLevel(1, 1)
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	return level.SoftReserved
}

func TestCreate_PlacesSoftHolds(t *testing.T) {
	f := newFixture(t)

	quote, err := f.service.Create(&CreateQuoteRequest{
		CustomerID:  1,
		WarehouseID: 1,
		Lines:       []QuoteLineRequest{{ProductID: 1, Quantity: 5}},
	}, "sales@test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quote.Status != StatusDraft {
		t.Errorf("expected draft, got %s", quote.Status)
	}
	if !strings.HasPrefix(quote.QuoteNumber, "QT-") {
		t.Errorf("unexpected quote number %q", quote.QuoteNumber)
	}
	if !quote.Total().Equal(decimal.NewFromInt(500)) {
		t.Errorf("total wrong: %s", quote.Total())
	}

	if f.softReserved(t) != 5 {
		t.Errorf("expected soft reserved 5, got %d", f.softReserved(t))
	}
	active, err := f.reservations.ActiveByReference(reservation.RefQuote, quote.ID)
	if err != nil {
		t.Fatalf("active by reference: %v", err)
	}
	if len(active) != 1 || active[0].Type != reservation.TypeSoft || active[0].ExpiresAt == nil {
		t.Fatalf("unexpected reservations: %+v", active)
	}
}

func TestAddLine_OnlyWhileOpen(t *testing.T) {
	f := newFixture(t)

	quote, err := f.service.Create(&CreateQuoteRequest{
		CustomerID: 1, WarehouseID: 1,
		Lines: []QuoteLineRequest{{ProductID: 1, Quantity: 2}},
	}, "sales@test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	quote, err = f.service.AddLine(quote.ID, &QuoteLineRequest{ProductID: 1, Quantity: 3}, "sales@test")
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if len(quote.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(quote.Lines))
	}
	if f.softReserved(t) != 5 {
		t.Errorf("expected soft reserved 5, got %d", f.softReserved(t))
	}

	if _, err := f.service.Decline(quote.ID, "sales@test", "price too high"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	_, err = f.service.AddLine(quote.ID, &QuoteLineRequest{ProductID: 1, Quantity: 1}, "sales@test")
	if !errs.IsInvalidTransition(err) {
		t.Errorf("add line to declined quote: expected invalid transition, got %v", err)
	}
}

func TestAccept_ConvertsAndReleasesHolds(t *testing.T) {
	f := newFixture(t)

	quote, err := f.service.Create(&CreateQuoteRequest{
		CustomerID: 1, WarehouseID: 1,
		Lines: []QuoteLineRequest{{ProductID: 1, Quantity: 4}},
	}, "sales@test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.service.Issue(quote.ID, "sales@test"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	created, err := f.service.Accept(quote.ID, order.ShipPartial, "sales@test")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if created.Status != order.StatusDraft {
		t.Errorf("expected draft order, got %s", created.Status)
	}
	if len(created.Lines) != 1 || created.Lines[0].QuantityOrdered != 4 {
		t.Fatalf("order lines wrong: %+v", created.Lines)
	}
	if created.Lines[0].SKU != "WIDGET" {
		t.Errorf("line SKU not carried: %q", created.Lines[0].SKU)
	}

	// Soft hold gone, no hard hold until the order is confirmed
	if f.softReserved(t) != 0 {
		t.Errorf("soft holds not released: %d", f.softReserved(t))
	}
	level, _ := f.ledger.GetLevel(1, 1)
	if level.HardReserved != 0 {
		t.Errorf("acceptance must not hard-reserve: %d", level.HardReserved)
	}

	reloaded, err := f.service.Get(quote.ID)
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if reloaded.Status != StatusAccepted || reloaded.SalesOrderID == nil || *reloaded.SalesOrderID != created.ID {
		t.Errorf("quote not linked to order: %+v", reloaded)
	}

	// A quote converts once
	_, err = f.service.Accept(quote.ID, order.ShipPartial, "sales@test")
	if !errs.IsInvalidTransition(err) {
		t.Errorf("second accept: expected invalid transition, got %v", err)
	}
}

func TestExpiry_LeavesQuoteOpen(t *testing.T) {
	f := newFixture(t)

	quote, err := f.service.Create(&CreateQuoteRequest{
		CustomerID: 1, WarehouseID: 1,
		Lines: []QuoteLineRequest{{ProductID: 1, Quantity: 4}},
	}, "sales@test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Sweep well past the TTL
	expired, err := f.reservations.ExpireSoftReservations(time.Now().Add(100 * time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Errorf("expected 1 expired, got %d", expired)
	}
	if f.softReserved(t) != 0 {
		t.Errorf("soft hold survived expiry: %d", f.softReserved(t))
	}

	// The quote itself is untouched and can still be accepted
	reloaded, err := f.service.Get(quote.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reloaded.IsOpen() {
		t.Errorf("expiry closed the quote: %s", reloaded.Status)
	}
	if _, err := f.service.Accept(quote.ID, order.ShipPartial, "sales@test"); err != nil {
		t.Fatalf("accept after expiry: %v", err)
	}
}

func TestDecline_FreesHolds(t *testing.T) {
	f := newFixture(t)

	quote, err := f.service.Create(&CreateQuoteRequest{
		CustomerID: 1, WarehouseID: 1,
		Lines: []QuoteLineRequest{{ProductID: 1, Quantity: 3}},
	}, "sales@test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	declined, err := f.service.Decline(quote.ID, "sales@test", "went elsewhere")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != StatusDeclined {
		t.Errorf("expected declined, got %s", declined.Status)
	}
	if f.softReserved(t) != 0 {
		t.Errorf("declined quote still holds stock: %d", f.softReserved(t))
	}
}
