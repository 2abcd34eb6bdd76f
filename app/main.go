package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orgkit/schedcomb/app/api"
	"github.com/orgkit/schedcomb/app/cfg"
	"github.com/orgkit/schedcomb/app/database"
	"github.com/orgkit/schedcomb/app/schedule"
	"github.com/orgkit/schedcomb/app/sync"
	"github.com/orgkit/schedcomb/app/tasks"
	"github.com/orgkit/schedcomb/app/urlsafe"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Sched Comb server", "version", appCfg.Version)

	db, err := database.NewConnection(
		appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database")

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	configCache := schedule.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded source configurations", "count", configCache.GetConfigCount(), "dir", appCfg.SourcesDir)

	sourceRepo := database.NewSourceRepository(db)
	eventRepo := database.NewEventRepository(db)

	client := urlsafe.NewClient(
		time.Duration(appCfg.FetchTimeout)*time.Second,
		appCfg.MaxBodySize,
		appCfg.MaxRedirects,
		appCfg.UserAgent)

	registry := schedule.NewRegistry(
		schedule.NewICSConnector(client),
		schedule.NewRSSConnector(client),
		schedule.NewHTMLTableConnector(client),
	)

	reconciler := sync.NewReconciler(eventRepo)
	extractor := sync.NewDescriptionExtractor()

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(configCache, sourceRepo, eventRepo, client, registry, reconciler, extractor)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(configCache, sourceRepo, eventRepo, client, registry, reconciler, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Sched Comb server started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Sched Comb server shutdown complete")
}
