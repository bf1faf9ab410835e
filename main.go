package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"commerce-engine/config"
	"commerce-engine/controllers"
	"commerce-engine/database"
	"commerce-engine/gateways"
	"commerce-engine/kafka"
	"commerce-engine/logger"
	"commerce-engine/models"
	"commerce-engine/repository"
	"commerce-engine/routes"
	"commerce-engine/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[CommerceEngine] ❌ Failed to load config:", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal("[CommerceEngine] ❌ Failed to initialize logger:", err)
	}
	defer zl.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		zl.Fatal("Failed to connect to DB", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zl.Fatal("Failed to migrate schema", zap.Error(err))
	}

	store := repository.NewGormStore(db)

	notifier := kafka.NewNotificationProducer(
		strings.Split(cfg.KafkaBrokers, ","),
		cfg.NotificationsTopic,
		zl,
	)
	defer notifier.Close()

	adapters := gateways.Registry{
		models.GatewayECPay: gateways.NewECPayAdapter(
			cfg.ECPayMerchantID, cfg.ECPayHashKey, cfg.ECPayHashIV,
			cfg.ECPayEndpoint,
			cfg.PublicBaseURL+"/callbacks/ecpay",
		),
		models.GatewayLinePay: gateways.NewLinePayAdapter(
			cfg.LinePayChannelID, cfg.LinePayChannelSecret,
			cfg.LinePayEndpoint,
			cfg.PublicBaseURL+"/callbacks/linepay",
			cfg.PublicBaseURL+"/payments/cancel",
		),
		models.GatewayStripe: gateways.NewStripeAdapter(
			cfg.StripeSecretKey, cfg.StripeWebhookKey,
			cfg.PublicBaseURL+"/payments/success",
			cfg.PublicBaseURL+"/payments/cancel",
		),
		models.GatewayManual: gateways.NewManualAdapter(cfg.ManualCallbackSecret),
	}

	locks := services.NewKeyedLock()
	inventory := services.NewInventoryService(store, notifier, zl)
	orders := services.NewOrderService(store, inventory, locks, zl)
	orchestrator := services.NewPaymentOrchestrator(store, adapters, inventory, locks, notifier, zl, cfg.GatewayTimeout)
	reconciler := services.NewReconciler(store, orchestrator, notifier, zl,
		cfg.PollInterval, cfg.PollGracePeriod, cfg.InitiateTimeout, cfg.PollRetryBudget)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reconciler.Run(ctx)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(zl))

	oc := &controllers.OrderController{Orders: orders, Logger: zl}
	pc := &controllers.PaymentController{Orchestrator: orchestrator, Logger: zl}
	wc := &controllers.WebhookController{Processor: orchestrator, Logs: store.CallbackLogs(), Logger: zl}
	ac := &controllers.AdminController{
		Orders:       orders,
		Orchestrator: orchestrator,
		Inventory:    inventory,
		Store:        store,
		Logger:       zl,
	}
	routes.Register(r, oc, pc, wc, ac)

	zl.Info("Commerce engine running", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		zl.Fatal("Server failed", zap.Error(err))
	}
}
