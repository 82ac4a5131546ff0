package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	receiptapp "github.com/AradIT/wadispatch/golang_services/internal/delivery_retrieval_service/app"
	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/app"
	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/provider"
	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/repository/postgres"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/blobstore"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/config"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/database"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/locker"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/logger"
	"github.com/AradIT/wadispatch/golang_services/internal/platform/messagebroker"
	httptransport "github.com/AradIT/wadispatch/golang_services/internal/public_api_service/transport/http"
)

const (
	serviceName     = "dispatch_service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	// Registered before any work starts so a signal during startup still shuts down gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service...", "provider", cfg.ProviderName, "http_port", cfg.HTTPPort)

	startCtx, startCancel := context.WithTimeout(mainCtx, startupTimeout)
	defer startCancel()

	dbPool, err := database.NewPostgresPool(startCtx, cfg.PostgresDSN, database.DefaultPoolConfig(), log)
	if err != nil {
		return fmt.Errorf("initialize database pool: %w", err)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	var blobs postgres.BlobStore
	if cfg.MediaS3Bucket != "" {
		store, err := blobstore.NewS3StoreFromConfig(startCtx, blobstore.Config{
			Bucket:   cfg.MediaS3Bucket,
			Prefix:   cfg.MediaS3Prefix,
			Region:   cfg.MediaS3Region,
			Endpoint: cfg.MediaS3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("initialize media blob store: %w", err)
		}
		blobs = store
		log.Info("S3 media store enabled", "bucket", cfg.MediaS3Bucket)
	}

	entryRepo := postgres.NewPgEntryRepository(dbPool, log)
	mediaRepo := postgres.NewPgMediaAssetRepository(dbPool, blobs, log)

	var dispatchLocker app.DispatchLocker
	if cfg.RedisAddr != "" {
		rdb, err := locker.NewRedisClient(startCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("initialize redis: %w", err)
		}
		defer rdb.Close()
		dispatchLocker = locker.NewRedisLocker(rdb, serviceName+":")
		log.Info("Redis dispatch lock enabled", "addr", cfg.RedisAddr)
	}

	nc, err := messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()
	log.Info("NATS connection initialized")

	sender := app.NewDeliveryClient(newProvider(cfg, log), log)
	scheduler := app.NewScheduler(entryRepo, mediaRepo, sender, dispatchLocker, log, app.SchedulerConfig{
		RecoveryHorizon: cfg.SchedulerRecoveryHorizon,
		SweepInterval:   cfg.SchedulerSweepInterval,
		SweepBatchSize:  cfg.SchedulerSweepBatchSize,
		DispatchTimeout: cfg.SchedulerDispatchTimeout,
		LockTTL:         cfg.SchedulerLockTTL,
	})

	reconciler := receiptapp.NewStatusReconciler(entryRepo, log)
	consumer := receiptapp.NewReceiptConsumer(nc, reconciler, log)
	// The subscription drains when mainCtx is cancelled.
	if _, err := consumer.StartConsuming(mainCtx, cfg.ReceiptsSubject, cfg.ReceiptsQueueGroup); err != nil {
		return err
	}

	router := httptransport.NewRouter(
		httptransport.NewWebhookHandler(nc, cfg.WhatsAppAppSecret, cfg.WhatsAppVerifyToken, log),
		httptransport.NewSchedulerHandler(
			app.NewEntryService(entryRepo, mediaRepo, scheduler, log),
			app.NewMediaService(mediaRepo, log),
			log,
		),
	)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if res, err := scheduler.OnStartup(groupCtx); err != nil {
			// The periodic sweep picks the backlog up once the database is reachable.
			log.ErrorContext(groupCtx, "Startup recovery sweep failed", "error", err)
		} else {
			log.InfoContext(groupCtx, "Startup recovery sweep complete", "found", res.Found, "dispatched", res.Dispatched, "skipped", res.Skipped, "armed", res.Armed)
		}

		ticker := time.NewTicker(cfg.SchedulerSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				res, err := scheduler.DueSweep(groupCtx)
				if err != nil {
					log.ErrorContext(groupCtx, "Due sweep failed", "error", err)
					continue
				}
				if res.Found > 0 {
					log.InfoContext(groupCtx, "Due sweep complete", "found", res.Found, "dispatched", res.Dispatched, "skipped", res.Skipped, "armed", res.Armed)
				}
			case <-groupCtx.Done():
				log.Info("Sweep worker stopping", "reason", groupCtx.Err())
				return nil
			}
		}
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	var groupErr error
	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig)
	case groupErr = <-watchGroup(g):
		log.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	log.Info("Attempting graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}
	// Drain timer dispatches before cancelling the sweep worker. A sweep dispatch
	// interrupted by the cancel leaves its entry pending for the next startup.
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.Error("Scheduler did not drain in time", "error", err)
	}
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Error during graceful shutdown of components", "error", err)
	}

	log.Info("Service shutdown complete.")
	return groupErr
}

func newProvider(cfg *config.Config, log *slog.Logger) provider.Provider {
	if cfg.ProviderName == "mock" {
		return provider.NewMockProvider(log, false, false, 0)
	}
	return provider.NewWhatsAppProvider(log, cfg.WhatsAppAPIBase, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken,
		&http.Client{Timeout: cfg.ProviderHTTPTimeout})
}

// watchGroup returns the error that made the errgroup exit.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
