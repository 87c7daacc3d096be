// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/fulfillment"
	"github.com/your-org/erp-backend/internal/domain/order"
	"github.com/your-org/erp-backend/internal/domain/product"
	"github.com/your-org/erp-backend/internal/domain/quote"
	"github.com/your-org/erp-backend/internal/domain/reservation"
	"github.com/your-org/erp-backend/internal/domain/stock"
	redisdb "github.com/your-org/erp-backend/internal/infrastructure/database/redis"
	"github.com/your-org/erp-backend/internal/interfaces/http/handlers"
	"github.com/your-org/erp-backend/internal/interfaces/http/middleware"
	"github.com/your-org/erp-backend/internal/pkg/dispatch"
	"github.com/your-org/erp-backend/internal/pkg/email"
	"github.com/your-org/erp-backend/internal/pkg/pdf"
)

// SetupRoutes wires the service graph and registers every endpoint.
// The same ledger and reservation manager instances back all routes so
// counter updates share one code path.
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, cache *redisdb.Client, cfg *config.Config, log *logrus.Logger) {
	ledger := stock.NewLedger(db, cfg, log)
	reservations := reservation.NewManager(db, ledger, cfg, log)
	products := product.NewService(db, cfg)
	orders := order.NewService(db, ledger, reservations, products, cfg, log)
	quotes := quote.NewService(db, reservations, orders, products, cfg, log)
	pdfService := pdf.NewService(cfg)
	emailService := email.NewEmailService(cfg, log)
	dispatcher := dispatch.New(db, cache, pdfService, emailService, cfg, log)
	planner := fulfillment.NewPlanner(db, ledger, reservations, orders, products, dispatcher, cfg, log)
	workflows := fulfillment.NewWorkflows(db, ledger, reservations, orders, dispatcher, cfg, log)

	authHandler := handlers.NewAuthHandler(db, cfg)
	stockHandler := handlers.NewStockHandler(ledger, cfg)
	reservationHandler := handlers.NewReservationHandler(reservations, cfg)
	productHandler := handlers.NewProductHandler(products, cfg)
	orderHandler := handlers.NewOrderHandler(orders, cfg)
	quoteHandler := handlers.NewQuoteHandler(quotes, cfg)
	fulfillmentHandler := handlers.NewFulfillmentHandler(planner, workflows, cfg)

	setupAuthRoutes(rg, authHandler, cfg)

	protected := rg.Group("")
	protected.Use(middleware.AuthMiddleware(cfg))

	setupProductRoutes(protected, productHandler)
	setupStockRoutes(protected, stockHandler, reservationHandler)
	setupOrderRoutes(protected, orderHandler, fulfillmentHandler)
	setupQuoteRoutes(protected, quoteHandler)
	setupDocumentRoutes(protected, fulfillmentHandler)
}

func setupAuthRoutes(rg *gin.RouterGroup, h *handlers.AuthHandler, cfg *config.Config) {
	auth := rg.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)

		protected := auth.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.GET("/profile", h.GetProfile)

			admin := protected.Group("")
			admin.Use(middleware.AdminMiddleware())
			{
				admin.POST("/register", h.Register)
			}
		}
	}
}

func setupProductRoutes(rg *gin.RouterGroup, h *handlers.ProductHandler) {
	products := rg.Group("/products")
	{
		products.GET("", h.List)
		products.GET("/:id", h.Get)
		products.GET("/sku/:sku", h.GetBySKU)
	}
}

func setupStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler, rh *handlers.ReservationHandler) {
	st := rg.Group("/stock")
	{
		st.GET("/warehouses", h.GetWarehouses)
		st.GET("/warehouses/default", h.GetDefaultWarehouse)
		st.GET("/levels", h.ListLevels)
		st.GET("/levels/:productId/:warehouseId", h.GetLevel)
		st.GET("/movements", h.ListMovements)
	}

	reservations := rg.Group("/reservations")
	{
		reservations.GET("/:refType/:refId", rh.ListByReference)
	}

	admin := rg.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/warehouses", h.CreateWarehouse)
		admin.POST("/stock/adjust", h.Adjust)
		admin.POST("/stock/receive", h.ReceivePurchase)
		admin.POST("/reservations", rh.Reserve)
		admin.POST("/reservations/:id/release", rh.Release)
		admin.POST("/reservations/expire-sweep", rh.ExpireSweep)
	}
}

func setupOrderRoutes(rg *gin.RouterGroup, h *handlers.OrderHandler, fh *handlers.FulfillmentHandler) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.POST("/:id/confirm", h.Confirm)
		orders.POST("/:id/hold", h.Hold)
		orders.POST("/:id/release-hold", h.ReleaseHold)

		orders.POST("/:id/execute-plan", fh.ExecutePlan)
		orders.POST("/:id/ship", fh.ShipOrder)
		orders.POST("/:id/invoice", fh.IssueTaxInvoice)
		orders.POST("/:id/close", fh.CloseOrder)
		orders.POST("/:id/cancel", fh.CancelOrder)
	}
}

func setupQuoteRoutes(rg *gin.RouterGroup, h *handlers.QuoteHandler) {
	quotes := rg.Group("/quotes")
	{
		quotes.POST("", h.Create)
		quotes.GET("", h.List)
		quotes.GET("/:id", h.Get)
		quotes.POST("/:id/lines", h.AddLine)
		quotes.POST("/:id/issue", h.Issue)
		quotes.POST("/:id/accept", h.Accept)
		quotes.POST("/:id/decline", h.Decline)
	}
}

func setupDocumentRoutes(rg *gin.RouterGroup, h *handlers.FulfillmentHandler) {
	slips := rg.Group("/picking-slips")
	{
		slips.POST("/:id/start", h.StartPicking)
		slips.POST("/:id/complete", h.CompletePickingSlip)
		slips.POST("/:id/cancel", h.CancelPickingSlip)
	}

	cards := rg.Group("/job-cards")
	{
		cards.POST("/:id/start", h.StartJobCard)
		cards.POST("/:id/hold", h.HoldJobCard)
		cards.POST("/:id/resume", h.ResumeJobCard)
		cards.POST("/:id/complete", h.CompleteJobCard)
		cards.POST("/:id/cancel", h.CancelJobCard)
	}

	transfers := rg.Group("/transfers")
	{
		transfers.POST("/:id/dispatch", h.DispatchTransfer)
		transfers.POST("/:id/receive", h.ReceiveTransfer)
		transfers.POST("/:id/cancel", h.CancelTransfer)
	}

	notes := rg.Group("/delivery-notes")
	{
		notes.POST("/:id/confirm", h.ConfirmDelivery)
	}
}
