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

	"github.com/gorilla/mux"

	"github.com/medaid/consent-trail/internal/consent"
	"github.com/medaid/consent-trail/internal/ledger"
	"github.com/medaid/consent-trail/internal/records"
	"github.com/medaid/consent-trail/internal/verify"
	"github.com/medaid/consent-trail/pkg/config"
	"github.com/medaid/consent-trail/pkg/database"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/monitoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Starting Consent Trail Service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Internal store tier
	consentStore, eventStore, db, err := buildStores(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize storage: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	// Ledger tier
	ledgerClient, err := buildLedgerClient(cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize ledger client: %v", err)
	}
	defer ledgerClient.Close()

	var reconciler *ledger.Reconciler
	if cfg.Ledger.Enabled() {
		reconciler = ledger.NewReconciler(&cfg.Ledger, appLogger)
		reconciler.Start(ctx)
		defer reconciler.Stop()
	}

	// Domain services
	gateway := hashing.NewGateway()
	consentManager := consent.NewManager(consentStore, ledgerClient, reconciler, gateway, appLogger)
	recordService := records.NewService(eventStore, ledgerClient, reconciler, gateway, appLogger)
	verifyService := verify.NewService(ledgerClient, eventStore, gateway, appLogger)

	// HTTP surface
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	consentManager.RegisterRoutes(api)
	recordService.RegisterRoutes(api)
	verifyService.RegisterRoutes(api)

	health := monitoring.NewHealthManager("consent-trail")
	registerHealthChecks(health, db, ledgerClient)

	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, monitoring.Handler()).Methods("GET")
		api.Use(monitoring.HTTPMiddleware)
	}
	router.Handle(cfg.Monitoring.HealthPath, health.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		appLogger.WithFields(map[string]interface{}{
			"addr":        server.Addr,
			"ledger_mode": cfg.Ledger.Mode,
			"db_driver":   cfg.Database.Driver,
		}).Info("Consent Trail Service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down Consent Trail Service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Error during shutdown: %v", err)
	}
	appLogger.Info("Consent Trail Service stopped")
}

// buildStores selects the internal store tier. The memory driver
// exists for development and tests; production runs on Postgres.
func buildStores(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (interfaces.ConsentStore, interfaces.RecordEventStore, *database.DB, error) {
	if cfg.Database.Driver == "memory" {
		appLogger.Warn("Using in-memory stores, data is not durable")
		return consent.NewMemoryStore(), records.NewMemoryStore(), nil, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		return nil, nil, nil, err
	}

	return consent.NewStore(db, appLogger), records.NewStore(db, appLogger), db, nil
}

// buildLedgerClient selects the ledger tier by configured mode
func buildLedgerClient(cfg *config.Config, appLogger *logger.Logger) (interfaces.LedgerClient, error) {
	switch cfg.Ledger.Mode {
	case config.LedgerModeRemote:
		return ledger.NewRemoteClient(&cfg.Ledger, appLogger), nil
	case config.LedgerModeEmbedded:
		return ledger.NewEmbeddedClient(cfg.Ledger.EmbeddedPath, appLogger)
	default:
		appLogger.Info("Ledger mirroring disabled")
		return ledger.NewDisabledClient(), nil
	}
}

func registerHealthChecks(health *monitoring.HealthManager, db *database.DB, ledgerClient interfaces.LedgerClient) {
	if db != nil {
		health.RegisterChecker("database", func(ctx context.Context) monitoring.HealthCheck {
			if err := db.Health(ctx); err != nil {
				return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: err.Error()}
			}
			return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy}
		})
	}

	// A dead ledger degrades the service, it does not take it down
	health.RegisterChecker("ledger", func(ctx context.Context) monitoring.HealthCheck {
		if !ledgerClient.IsAvailable() {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusDegraded, Message: "ledger unavailable"}
		}
		return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy}
	})
}
