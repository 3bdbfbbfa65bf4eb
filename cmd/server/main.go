package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"optical-pos/config"
	"optical-pos/internal/api"
	"optical-pos/internal/broker"
	"optical-pos/internal/cart"
	"optical-pos/internal/redisclient"
	"optical-pos/internal/service"
	"optical-pos/internal/store"
	"optical-pos/internal/store/memory"
	"optical-pos/internal/util"
	"optical-pos/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting optical POS checkout service")

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	repo := openRepository(cfg, logger)
	defer repo.Close()

	var cache service.StockCache = service.NoopStockCache{}
	var redisClient *redisclient.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = service.NewBreakerStockCache(redisClient, time.Duration(cfg.Redis.BreakerTimeoutSeconds)*time.Second)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var events service.EventPublisher = service.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSale)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	catalog := service.NewCatalog(repo, cache, events)
	customers := service.NewCustomerDirectory(repo)
	checkout := service.NewCheckoutService(
		catalog,
		customers,
		service.NewStockHolder(repo, cache, catalog),
		service.NewSaleFinalizer(repo, cache, catalog, events),
		service.NewSaleCanceller(repo, cache, catalog, events),
		cart.NewInvoiceGenerator(cfg.Business.TaxRate, nil),
		cfg.Business.CheckoutTimeout(),
	)

	ctx := context.Background()
	if redisClient != nil {
		if err := catalog.SyncInventoryToRedis(ctx); err != nil {
			logger.Error("Failed to sync inventory to Redis", zap.Error(err))
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	expiryWorker := worker.NewHoldExpiryWorker(checkout, cfg.Business.HoldTTL(), cfg.Business.SessionIdleTTL(), cfg.Business.HoldSweepInterval())
	go func() {
		if err := expiryWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Hold expiry worker error", zap.Error(err))
		}
	}()

	// the mirror of other replicas is resynced from sale events
	var inventoryWorker *worker.InventoryWorker
	if redisClient != nil && len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSale, cfg.Kafka.ConsumerGroup)
		inventoryWorker = worker.NewInventoryWorker(consumer, redisClient, catalog)
		go func() {
			if err := inventoryWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Inventory worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(repo, catalog, customers, service.NewSaleRecords(repo), checkout)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if inventoryWorker != nil {
		inventoryWorker.Stop()
	}

	logger.Info("Server exited")
}

// openRepository returns the PostgreSQL store, or the seeded in-memory store
// when no database is configured
func openRepository(cfg *config.Config, logger *zap.Logger) store.Repository {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using seeded in-memory store")
		return memory.NewSeeded()
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}
	logger.Info("Database connected")
	return db
}
