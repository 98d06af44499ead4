package main

import (
	"log"
	"strings"

	"github.com/Otuja/bookshop/config"
	"github.com/Otuja/bookshop/controllers"
	"github.com/Otuja/bookshop/database"
	"github.com/Otuja/bookshop/events"
	"github.com/Otuja/bookshop/logger"
	"github.com/Otuja/bookshop/middleware"
	"github.com/Otuja/bookshop/repository"
	"github.com/Otuja/bookshop/routes"
	"github.com/Otuja/bookshop/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[Bookshop] Failed to load config: ", err)
	}

	logger.Initialize(cfg.AppEnv)
	defer logger.Log.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Migration failed", zap.Error(err))
	}

	var publisher events.Publisher
	if cfg.KafkaBrokers != "" {
		producer := events.NewPaymentEventProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.PaymentTopic)
		defer producer.Close()
		publisher = producer
	}

	orderRepo := repository.NewGormOrderRepository(db)
	bookRepo := repository.NewGormBookRepository(db)

	checkoutService := services.NewCheckoutService(db, cfg.PaymentBaseURL, logger.Log)
	settlementService := services.NewSettlementService(db, publisher, logger.Log)
	orderService := services.NewOrderService(orderRepo, logger.Log)
	catalogService := services.NewCatalogService(bookRepo, logger.Log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Log))

	routes.Register(r,
		controllers.NewCheckoutController(checkoutService, settlementService, logger.Log),
		controllers.NewWebhookController(settlementService, logger.Log),
		controllers.NewOrderController(orderService),
		controllers.NewBookController(catalogService),
	)

	logger.Log.Info("Bookshop checkout service running", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Log.Fatal("Server failed", zap.Error(err))
	}
}
