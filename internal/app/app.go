package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-code-service/internal/audit"
	"mail-code-service/internal/auth"
	"mail-code-service/internal/config"
	"mail-code-service/internal/db"
	"mail-code-service/internal/fetcher"
	"mail-code-service/internal/handlers"
	"mail-code-service/internal/metrics"
	"mail-code-service/internal/server"
	"mail-code-service/internal/service"
	"mail-code-service/internal/store"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	logrus.Info("Starting mail code service")

	st, err := store.New(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	var auditDB *gorm.DB
	if cfg.Audit.Enabled {
		auditDB, err = db.Init(cfg.Audit)
		if err != nil {
			return fmt.Errorf("failed to initialize audit database: %w", err)
		}
	}
	auditLog := audit.New(auditDB)

	m := metrics.NewMetrics()
	authClient := auth.NewClient(cfg.Auth, cfg.Graph.Timeout)

	var newFetcher service.FetcherFactory
	if cfg.IMAP.Enabled {
		newFetcher = func(accessToken, email string) fetcher.EmailFetcher {
			return fetcher.NewIMAPFetcher(cfg.IMAP.Host, cfg.IMAP.Port, email, accessToken, cfg.IMAP.Limit)
		}
		logrus.Info("Using IMAP for mailbox access")
	} else {
		newFetcher = func(accessToken, email string) fetcher.EmailFetcher {
			return fetcher.NewGraphFetcher(cfg.Graph.BaseURL, accessToken, cfg.Graph.PageSize, cfg.Graph.Timeout)
		}
		logrus.Info("Using Microsoft Graph for mailbox access")
	}

	codes := service.NewCodeService(authClient, st, newFetcher, m)
	accounts := service.NewAccountService(st, auditLog, m)

	h := handlers.NewHandlers(codes, accounts, st, auditDB)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
