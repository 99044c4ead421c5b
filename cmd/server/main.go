package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"plantcare-platform/internal/config"
	"plantcare-platform/internal/handlers"
	"plantcare-platform/internal/learners"
	"plantcare-platform/internal/providers"
	"plantcare-platform/internal/repository"
	"plantcare-platform/internal/services"
	"plantcare-platform/pkg/database"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

const checkpointInterval = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("plantcare-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting plant-care prediction server", logging.Fields{
		"version":          "1.0.0",
		"server_host":      cfg.Server.Host,
		"server_port":      cfg.Server.Port,
		"db_host":          cfg.Database.Host,
		"db_name":          cfg.Database.Database,
		"weather_provider": cfg.Weather.Provider,
		"geocoder":         cfg.Geocoder.Primary,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("plantcare_platform")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository
	plantRepo := repository.NewPlantRepository(db, logger, metricsCollector)

	// Initialize external providers (selection happens once, here)
	weatherProvider, err := providers.NewWeatherProviderFromConfig(cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to initialize weather provider", logging.Fields{}, err)
	}

	geocoder, err := providers.NewGeocoderFromConfig(cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to initialize geocoder", logging.Fields{}, err)
	}

	// Initialize the learner hub and restore persisted coefficients
	hub := learners.NewHub()
	stateService := services.NewStateService(plantRepo, hub, logger, metricsCollector)
	if err := stateService.Restore(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to restore learner state", logging.Fields{}, err)
	}

	// Initialize services
	predictionService := services.NewPredictionService(
		plantRepo,
		weatherProvider,
		hub,
		cfg.Weather.HoursAhead,
		cfg.Weather.Timeout,
		logger,
		metricsCollector,
	)
	geocodingService := services.NewGeocodingService(
		plantRepo,
		geocoder,
		cfg.Geocoder.Timeout,
		logger,
		metricsCollector,
	)

	// Periodic learner-state checkpoints
	if err := stateService.StartCheckpointJob(checkpointInterval); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to start checkpoint job", logging.Fields{}, err)
	}

	// Initialize handlers
	predictionHandler := handlers.NewPredictionHandler(predictionService, geocodingService, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	router.Use(handlers.RequestIDMiddleware)
	predictionHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      cors.AllowAll().Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	// Final learner-state save before the process exits
	if err := stateService.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Final state checkpoint failed", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
