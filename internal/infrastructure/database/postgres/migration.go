// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/your-org/erp-backend/internal/domain/customer"
	"github.com/your-org/erp-backend/internal/domain/fulfillment"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/product"
	"github.com/your-org/erp-backend/internal/domain/quote"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/domain/user"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Dependency order: masters first, documents last.
	models := []interface{}{
		&user.User{},
		&customer.Customer{},
		&product.Product{},

		&stock.Warehouse{},
		&stock.StockLevel{},
		&stock.StockMovement{},
		&reservation.StockReservation{},

		&order.SalesOrder{},
		&order.SalesOrderLine{},
		&order.StatusHistory{},

		&quote.Quote{},
		&quote.QuoteLine{},

		&fulfillment.PickingSlip{},
		&fulfillment.PickingSlipLine{},
		&fulfillment.JobCard{},
		&fulfillment.TransferRequest{},
		&fulfillment.DeliveryNote{},
		&fulfillment.PackingList{},
		&fulfillment.TaxInvoice{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating database indexes...")

	indexes := []string{
		// Stock indexes
		"CREATE INDEX IF NOT EXISTS idx_stock_levels_warehouse ON stock_levels(warehouse_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_product_warehouse ON stock_movements(product_id, warehouse_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_created_at ON stock_movements(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_type ON stock_movements(type)",

		// Reservation indexes
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_reference ON stock_reservations(reference_type, reference_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_product_warehouse ON stock_reservations(product_id, warehouse_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_active_expiry ON stock_reservations(expires_at) WHERE released_at IS NULL",

		// Sales order indexes
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_customer_status ON sales_orders(customer_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_status_created ON sales_orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_sales_orders_order_number ON sales_orders(order_number)",
		"CREATE INDEX IF NOT EXISTS idx_sales_order_lines_order ON sales_order_lines(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_order_lines_product ON sales_order_lines(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_sales_order_status_history_order ON sales_order_status_history(order_id, created_at DESC)",

		// Quote indexes
		"CREATE INDEX IF NOT EXISTS idx_quotes_customer_status ON quotes(customer_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_quote_lines_quote ON quote_lines(quote_id)",

		// Fulfillment document indexes
		"CREATE INDEX IF NOT EXISTS idx_picking_slips_order_status ON picking_slips(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_picking_slip_lines_slip ON picking_slip_lines(picking_slip_id)",
		"CREATE INDEX IF NOT EXISTS idx_job_cards_order_status ON job_cards(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_job_cards_order_line ON job_cards(order_line_id)",
		"CREATE INDEX IF NOT EXISTS idx_transfer_requests_order_status ON transfer_requests(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_delivery_notes_order ON delivery_notes(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_tax_invoices_order ON tax_invoices(order_id)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	if failCount > 0 {
		return fmt.Errorf("%d of %d index statements failed", failCount, len(indexes))
	}
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedWarehouses(); err != nil {
		return fmt.Errorf("failed to seed warehouses: %w", err)
	}

	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := m.seedProducts(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	if err := m.seedCustomers(); err != nil {
		return fmt.Errorf("failed to seed customers: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

// seedWarehouses creates the default warehouses
func (m *Migration) seedWarehouses() error {
	log.Println("🏬 Seeding warehouses...")

	warehouses := []stock.Warehouse{
		{
			Name:      "Johannesburg Main",
			Code:      "JHB",
			City:      "Johannesburg",
			IsActive:  true,
			IsDefault: true,
		},
		{
			Name:      "Cape Town Branch",
			Code:      "CPT",
			City:      "Cape Town",
			IsActive:  true,
			IsDefault: false,
		},
	}

	for _, wh := range warehouses {
		var existing stock.Warehouse
		result := m.db.Where("code = ?", wh.Code).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&wh).Error; err != nil {
				return err
			}
			log.Printf("✅ Created warehouse: %s", wh.Code)
		} else {
			log.Printf("⏭️ Warehouse already exists: %s", wh.Code)
		}
	}

	return nil
}

func (m *Migration) seedAdminUser() error {
	log.Println("👤 Seeding admin user...")

	var existing user.User
	result := m.db.Where("email = ?", "admin@example.com").First(&existing)
	if result.Error != nil {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), 10)
		if err != nil {
			log.Printf("❌ Failed to hash password: %v", err)
			return fmt.Errorf("failed to hash password: %w", err)
		}

		adminUser := user.User{
			Email:     "admin@example.com",
			Password:  string(hashedPassword),
			FirstName: "Admin",
			LastName:  "User",
			IsActive:  true,
			IsAdmin:   true,
		}

		if err := m.db.Create(&adminUser).Error; err != nil {
			log.Printf("❌ Failed to create admin user: %v", err)
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		log.Println("✅ Created admin user: admin@example.com / admin123")
	} else {
		log.Println("⏭️ Admin user already exists")
	}

	return nil
}

// seedProducts creates sample products covering every fulfillment class
func (m *Migration) seedProducts() error {
	log.Println("📦 Seeding products...")

	products := []product.Product{
		{
			SKU:              "WIDGET-STD",
			Name:             "Standard Widget",
			Description:      "Off the shelf widget, ships from stock",
			UnitPrice:        decimal.NewFromInt(150),
			FulfillmentClass: product.Stocked,
			IsActive:         true,
		},
		{
			SKU:              "KIT-DELUXE",
			Name:             "Deluxe Kit",
			Description:      "Kitted from components on a job card",
			UnitPrice:        decimal.NewFromInt(780),
			FulfillmentClass: product.AssemblyRequired,
			IsActive:         true,
		},
		{
			SKU:              "CUSTOM-UNIT",
			Name:             "Custom Unit",
			Description:      "Manufactured per order",
			UnitPrice:        decimal.NewFromInt(2400),
			FulfillmentClass: product.MadeToOrder,
			IsActive:         true,
		},
	}

	for _, p := range products {
		var existing product.Product
		result := m.db.Where("sku = ?", p.SKU).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&p).Error; err != nil {
				return err
			}
			log.Printf("✅ Created product: %s", p.SKU)
		} else {
			log.Printf("⏭️ Product already exists: %s", p.SKU)
		}
	}

	return nil
}

// seedCustomers creates a sample customer for development
func (m *Migration) seedCustomers() error {
	log.Println("🧾 Seeding customers...")

	var defaultWarehouse stock.Warehouse
	if err := m.db.Where("is_default = ?", true).First(&defaultWarehouse).Error; err != nil {
		return fmt.Errorf("default warehouse missing: %w", err)
	}

	customers := []customer.Customer{
		{
			Code:               "ACME",
			Name:               "Acme Trading",
			Email:              "orders@acme.example.com",
			Phone:              "+27 11 555 0100",
			DefaultWarehouseID: defaultWarehouse.ID,
			IsActive:           true,
		},
	}

	for _, c := range customers {
		var existing customer.Customer
		result := m.db.Where("code = ?", c.Code).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&c).Error; err != nil {
				return err
			}
			log.Printf("✅ Created customer: %s", c.Code)
		} else {
			log.Printf("⏭️ Customer already exists: %s", c.Code)
		}
	}

	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records: %d", totalRecords)

	return nil
}
