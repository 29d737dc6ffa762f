package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/logbook/internal/attachments"
	"github.com/rpattn/logbook/internal/config"
	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/entries"
	"github.com/rpattn/logbook/internal/export"
	"github.com/rpattn/logbook/internal/ingestion"
	"github.com/rpattn/logbook/internal/lock"
	"github.com/rpattn/logbook/internal/logbooks"
	"github.com/rpattn/logbook/internal/logging"
	"github.com/rpattn/logbook/internal/middleware"
	"github.com/rpattn/logbook/internal/repository"
	"github.com/rpattn/logbook/internal/repository/memory"
	"github.com/rpattn/logbook/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", envOr("LOGBOOK_CONFIG_PATH", "."), "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("failed to build logger")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var store repository.Store
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on exit")
		store = memory.NewStore()
	default:
		if err := db.RunMigrations(cfg.Database, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		conn, err := db.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer conn.Close()
		store = repository.NewPostgresStore(conn)
	}
	repos := store.Repositories()

	// Services
	engine := search.NewEngine(repos, search.WithIndexTTL(cfg.SearchIndexTTL), search.WithLogger(logger))
	locks := lock.NewManager(store, lock.WithTTL(cfg.LockTTL), lock.WithLogger(logger))
	files := attachments.NewStore(cfg.AttachmentsDir, logger)

	logbookService := logbooks.NewService(store, engine, logbooks.WithLogger(logger))
	entryService := entries.NewService(store, engine, locks, files,
		entries.WithLogger(logger),
		entries.WithDefaultLimit(cfg.SearchLimit),
	)
	ingestionService := ingestion.NewService(repos.Logbooks, entryService, logger)
	exportService := export.NewService(entryService, export.WithLogger(logger))

	mux := http.NewServeMux()
	logbooks.NewHTTPHandler(logbookService).Register(mux)
	entries.NewHTTPHandler(entryService).Register(mux)
	ingestion.NewHTTPHandler(ingestionService).Register(mux)
	export.NewHTTPHandler(exportService, repos.Logbooks).Register(mux)
	mux.Handle("GET /attachments/", http.StripPrefix("/attachments/", http.FileServer(http.Dir(cfg.AttachmentsDir))))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	handler := middleware.LoggingMiddleware(logger)(
		middleware.OwnerMiddleware(
			middleware.DataLoaderMiddleware(repos.Attachments)(mux),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("storage", cfg.StorageDriver).
			Dur("lock_ttl", cfg.LockTTL).
			Msg("starting logbook server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
