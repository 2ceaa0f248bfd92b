package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oncotracker/oncotracker/internal/config"
	"github.com/oncotracker/oncotracker/internal/domain/ingestion"
	"github.com/oncotracker/oncotracker/internal/domain/observation"
	"github.com/oncotracker/oncotracker/internal/domain/timeline"
	"github.com/oncotracker/oncotracker/internal/platform/auth"
	"github.com/oncotracker/oncotracker/internal/platform/blobstore"
	"github.com/oncotracker/oncotracker/internal/platform/db"
	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oncotracker",
		Short:         "Oncology journey spreadsheet engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(templateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// app holds the services shared by the server and the store-backed commands.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	dict         *metric.Dictionary
	blobs        blobstore.BlobStore
	observations *observation.Service
	ingestion    *ingestion.Service
	timeline     *timeline.Service
	storeHealth  echo.HandlerFunc
	closers      []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	dict, err := metric.Load(cfg.MetricDictionaryPath)
	if err != nil {
		return nil, err
	}
	a.dict = dict

	var repo observation.Repository
	switch cfg.StoreDriver {
	case "sqlite":
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { sqlDB.Close() })
		r := observation.NewRepoSQLite(sqlDB)
		if err := r.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		repo = r
		a.storeHealth = db.HealthHandler("sqlite", sqlDB.PingContext, nil)
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite observation store")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		repo = observation.NewRepoPG(pool)
		a.storeHealth = db.HealthHandler("postgres", pool.Ping, func() any { return db.GetPoolStats(pool) })
		logger.Info().Msg("connected to database")
	}

	blobs, err := blobstore.NewFileSystemBlobStore(filepath.Join(cfg.DataDir, "patient-data"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.blobs = blobs

	var analyzer mapping.Analyzer
	if cfg.OracleEnabled() {
		ga, err := mapping.NewGenAIAnalyzer(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, dict)
		if err != nil {
			a.Close()
			return nil, err
		}
		analyzer = ga
		logger.Info().Str("model", cfg.GenAIModel).Msg("column analysis enabled")
	}

	a.observations = observation.NewService(repo, dict)
	a.ingestion = ingestion.NewService(blobs, a.observations, analyzer, dict, ingestion.Options{
		AnalysisTimeout: cfg.AnalysisTimeout,
		AnalysisRetries: cfg.AnalysisRetries,
		SampleRows:      cfg.AnalysisSampleRows,
	}, logger)
	a.timeline = timeline.NewService(a.ingestion, dict)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) routes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", a.storeHealth)

	var authMW echo.MiddlewareFunc
	if a.cfg.ResolvedAuthMode() == "development" {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     a.cfg.AuthIssuer,
			Audience:   a.cfg.AuthAudience,
			SigningKey: []byte(a.cfg.AuthSigningKey),
		})
	}

	apiV1 := e.Group("/api/v1", authMW)
	fhirGroup := e.Group("/fhir", authMW)

	observation.NewHandler(a.observations).RegisterRoutes(apiV1, fhirGroup)
	ingestion.NewHandler(a.ingestion, a.dict).RegisterRoutes(apiV1)
	timeline.NewHandler(a.timeline).RegisterRoutes(apiV1)
}

func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	e := newEcho(cfg, logger)
	a.routes(e)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
