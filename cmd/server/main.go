package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/courseflow/reconciliation-engine/internal/config"
	"github.com/courseflow/reconciliation-engine/internal/events"
	"github.com/courseflow/reconciliation-engine/internal/handler"
	"github.com/courseflow/reconciliation-engine/internal/lock"
	"github.com/courseflow/reconciliation-engine/internal/logger"
	"github.com/courseflow/reconciliation-engine/internal/repository"
	"github.com/courseflow/reconciliation-engine/internal/service"
	"github.com/courseflow/reconciliation-engine/pkg/response"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal().Err(err).Msg("configuring logger")
	}

	db, err := initDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	defer db.Close()

	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Repositories and unit of work
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	uow := repository.NewUnitOfWork(db)

	// Per-invoice distributed lock and event publisher
	locker := lock.NewRedisLocker(redisClient, lock.Options{
		Expiry:     cfg.Lock.Expiry,
		Tries:      cfg.Lock.Tries,
		RetryDelay: cfg.Lock.RetryDelay,
	})
	publisher := events.NewRedisPublisher(redisClient, cfg.Business.EventChannel)

	reconciliationService := service.NewReconciliationService(
		invoiceRepo, paymentRepo, auditRepo, uow, locker, publisher, redisClient, cfg)

	reconciliationHandler := handler.NewReconciliationHandler(reconciliationService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	router := setupRoutes(reconciliationHandler, healthHandler)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(reconciliationHandler *handler.ReconciliationHandler, healthHandler *handler.HealthHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.JSONMiddleware, response.LoggingMiddleware)

	// Health checks
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	reconciliationHandler.Routes(api)

	return router
}
