package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"keyframes-backend/internal/autosave"
	"keyframes-backend/internal/config"
	"keyframes-backend/internal/database"
	"keyframes-backend/internal/export"
	"keyframes-backend/internal/handlers"
	"keyframes-backend/internal/logger"
	"keyframes-backend/internal/middleware"
	"keyframes-backend/internal/realtime"
	"keyframes-backend/internal/services"
	"keyframes-backend/internal/supabase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer log.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrator, err := database.NewMigrator(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to initialize migrator", "error", err)
	}
	if err := migrator.Run(ctx); err != nil {
		log.Fatal("migration failed", "error", err)
	}
	_ = migrator.Close()

	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to initialize database client", "error", err)
	}
	defer dbClient.Close()

	supabaseClient, err := supabase.NewClient(cfg)
	if err != nil {
		log.Fatal("failed to initialize supabase client", "error", err)
	}

	storageClient, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseMediaBucket)
	if err != nil {
		log.Fatal("failed to initialize storage client", "error", err)
	}

	var bus realtime.Bus = realtime.NewLocalBus()
	if cfg.RedisAddr != "" {
		bus, err = realtime.NewRedisBus(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Fatal("failed to connect redis bus", "error", err)
		}
	}
	defer bus.Close()

	hub := realtime.NewHub(log)
	if err := bus.StartForwarder(ctx, hub.Broadcast); err != nil {
		log.Fatal("failed to start realtime forwarder", "error", err)
	}

	var transport export.Transport
	switch cfg.ExportMode {
	case config.ExportModeSimulated:
		transport = export.NewSimulatedTransport(cfg.SupabaseURL)
	default:
		transport = export.NewFunctionTransport(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.ExportFunctionName, supabaseClient)
	}

	editor := services.NewEditorService(dbClient, dbClient, bus, log,
		services.WithAutosaveOptions(autosave.WithDebounce(cfg.AutosaveDebounce)),
		services.WithUploader(storageClient),
		services.WithIdleEviction(cfg.SessionIdleTimeout),
	)
	exports := services.NewExportService(editor, dbClient, dbClient, transport, bus, log, cfg.ExportPollInterval, cfg.ExportMaxRetries)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	router.GET("/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg, dbClient))
	handlers.Routes{
		Projects: handlers.NewProjectsHandler(editor),
		Timeline: handlers.NewTimelineHandler(editor),
		Assets:   handlers.NewAssetsHandler(editor),
		Exports:  handlers.NewExportsHandler(exports),
		Events:   handlers.NewEventsHandler(editor, hub, log),
	}.Register(api)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "export_mode", cfg.ExportMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	exports.Close()
	if err := editor.Close(shutdownCtx); err != nil {
		log.Error("failed to save open projects", "error", err)
	}
}
