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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/api"
	"github.com/stellar-oracle/love-oracle/internal/auth"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/extract"
	"github.com/stellar-oracle/love-oracle/internal/history"
	"github.com/stellar-oracle/love-oracle/internal/metrics"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
	"github.com/stellar-oracle/love-oracle/internal/notifications"
	"github.com/stellar-oracle/love-oracle/internal/oracle"
	"github.com/stellar-oracle/love-oracle/internal/scheduler"
	"github.com/stellar-oracle/love-oracle/internal/session"
	"github.com/stellar-oracle/love-oracle/internal/storage"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Love Oracle")
	metrics.Register()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logrus.Fatalf("Failed to load catalog: %v", err)
	}

	extractor, err := extract.NewExtractor(catalog.MatchPatterns)
	if err != nil {
		logrus.Fatalf("Failed to compile match patterns: %v", err)
	}

	storageClient, err := newStorage(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	historyStore, closeHistory, err := newHistory(cfg, storageClient)
	if err != nil {
		logrus.Fatalf("Failed to initialize history: %v", err)
	}
	defer closeHistory()

	allowList := auth.NewAllowList(cfg.AllowedUserIDs, cfg.AllowListURL)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := allowList.Refresh(initCtx); err != nil {
		logrus.Errorf("Initial allow-list refresh failed: %v", err)
	}
	cancelInit()
	metrics.AllowListSize.Set(float64(allowList.Size()))
	logrus.Infof("Allow-list loaded with %d purchaser IDs", allowList.Size())

	sessions := session.NewMemoryStore(cfg.SessionMaxAge)
	cookies := session.NewCookieCodec(cfg.SessionSecret, cfg.SessionMaxAge, cfg.SecureCookies)

	openaiClient := narrative.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.GenerationTimeout)
	generator := narrative.NewGenerator(openaiClient)

	// Initialize notification services
	var notifier notifications.NotificationInterface
	if notificationService := notifications.NewService(cfg); notificationService.Enabled() {
		notifier = notificationService
	}

	oracleService := oracle.NewService(cfg, catalog, storageClient, historyStore, generator, extractor, notifier)

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, allowList, sessions)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := api.NewServer(cfg, catalog, sessions, cookies, allowList, openaiClient, oracleService).Router()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func newStorage(cfg *config.Config) (storage.StorageInterface, error) {
	switch cfg.StorageBackend {
	case "azure":
		return storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
	default:
		return storage.NewLocalStorage(cfg.StorageDir)
	}
}

func newHistory(cfg *config.Config, store storage.StorageInterface) (history.Store, func(), error) {
	if cfg.HistoryBackend == "sqlite" {
		db, err := history.OpenSQLite(cfg.HistoryDBPath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logrus.Errorf("Failed to close history database: %v", err)
			}
		}, nil
	}
	return history.NewBlobStore(store, "history/"), func() {}, nil
}
