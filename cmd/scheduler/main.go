package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/courseflow/reconciliation-engine/internal/config"
	"github.com/courseflow/reconciliation-engine/internal/events"
	"github.com/courseflow/reconciliation-engine/internal/lock"
	"github.com/courseflow/reconciliation-engine/internal/logger"
	"github.com/courseflow/reconciliation-engine/internal/repository"
	"github.com/courseflow/reconciliation-engine/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal().Err(err).Msg("configuring logger")
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	uow := repository.NewUnitOfWork(db)
	locker := lock.NewRedisLocker(redisClient, lock.Options{
		Expiry:     cfg.Lock.Expiry,
		Tries:      cfg.Lock.Tries,
		RetryDelay: cfg.Lock.RetryDelay,
	})
	publisher := events.NewRedisPublisher(redisClient, cfg.Business.EventChannel)

	reconciliationService := service.NewReconciliationService(
		invoiceRepo, paymentRepo, auditRepo, uow, locker, publisher, redisClient, cfg)

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Scheduler.Timezone).Msg("loading scheduler timezone")
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(location))

	// Daily overdue sweep. Overdue is a derived label, so the job only
	// publishes events; nothing is written to the stores.
	_, err = c.AddFunc(cfg.Scheduler.OverdueCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		count, err := reconciliationService.SweepOverdue(ctx, time.Now().In(location))
		if err != nil {
			log.Error().Err(err).Msg("overdue sweep failed")
			return
		}
		log.Info().Int("invoices", count).Msg("overdue sweep complete")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduling overdue sweep")
	}

	c.Start()
	log.Info().Str("cron", cfg.Scheduler.OverdueCron).Msg("scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down scheduler")
	<-c.Stop().Done()
	log.Info().Msg("scheduler stopped")
}
