package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/directory/internal/config"
	"github.com/ehr/directory/internal/domain/directory"
	"github.com/ehr/directory/internal/platform/auth"
	"github.com/ehr/directory/internal/platform/db"
	"github.com/ehr/directory/internal/platform/middleware"
	"github.com/ehr/directory/internal/platform/source"
	"github.com/ehr/directory/internal/platform/telemetry"
	"github.com/ehr/directory/pkg/pagination"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "directory-server",
		Short:        "Read-only patient directory API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the directory API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one directory query against the configured source and print the JSON page",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			limit, _ := cmd.Flags().GetInt("limit")
			search, _ := cmd.Flags().GetString("search")
			sortBy, _ := cmd.Flags().GetString("sort-by")
			sortOrder, _ := cmd.Flags().GetString("sort-order")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			h, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer h.close()

			svc, err := newService(cfg, h.src, nil, logger)
			if err != nil {
				return err
			}

			pg := pagination.Params{Page: page, Limit: limit}.Clamp()
			res, err := svc.Query(ctx, directory.Params{
				Page:     pg.Page,
				PageSize: pg.Limit,
				Search:   search,
				SortBy:   directory.ParseSortField(sortBy),
				IDOrder:  directory.ParseIDOrder(sortOrder),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pagination.NewResponse(res.Records, res.Pagination))
		},
	}
	cmd.Flags().Int("page", pagination.DefaultPage, "Page number (1-based)")
	cmd.Flags().Int("limit", pagination.DefaultLimit, "Records per page (capped at 500)")
	cmd.Flags().String("search", "", "Case-insensitive substring matched against name, medical issue and primary address")
	cmd.Flags().String("sort-by", "", "patient_name, age or medical_issue")
	cmd.Flags().String("sort-order", "", "Patient id order: asc or desc")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the configured source once and report the record count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			h, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer h.close()

			start := time.Now()
			records, err := h.src.Load(ctx)
			if err != nil {
				return fmt.Errorf("source %s: %w", h.src.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "source=%s records=%d elapsed=%s\n",
				h.src.Name(), len(records), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Copy a dataset file into the PostgreSQL or SQLite source, replacing its contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if from == "" {
				from = cfg.DataFile
			}
			if to == "" {
				to = cfg.Source
			}

			ctx := cmd.Context()
			records, err := source.NewFileSource(from).Load(ctx)
			if err != nil {
				return err
			}

			var n int64
			switch to {
			case config.SourcePostgres:
				if cfg.DatabaseURL == "" {
					return fmt.Errorf("DATABASE_URL is required to seed postgres")
				}
				pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()
				if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				if n, err = source.SeedPostgres(ctx, pool, records); err != nil {
					return err
				}
			case config.SourceSQLite:
				if cfg.SQLitePath == "" {
					return fmt.Errorf("SQLITE_PATH is required to seed sqlite")
				}
				sqlDB, err := source.CreateSQLite(ctx, cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer sqlDB.Close()
				if n, err = source.SeedSQLite(ctx, sqlDB, records); err != nil {
					return err
				}
			default:
				return fmt.Errorf("seed target must be postgres or sqlite, got %q", to)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d record(s) from %s into %s.\n", n, from, to)
			return nil
		},
	}
	cmd.Flags().String("from", "", "Dataset file to read (default DATA_FILE)")
	cmd.Flags().String("to", "", "Target source: postgres or sqlite (default SOURCE)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// newLogger writes JSON, or console output in development, at LOG_LEVEL.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}
	lvl, _ := cfg.Level()
	return logger.Level(lvl).With().Timestamp().Str("service", "directory").Logger()
}

// sourceHandle is an opened record source plus what is needed to close it.
type sourceHandle struct {
	src    directory.RecordSource
	pinger db.Pinger // nil unless the source is backed by PostgreSQL
	close  func()
}

func openSource(ctx context.Context, cfg *config.Config) (*sourceHandle, error) {
	switch cfg.Source {
	case config.SourceFile:
		return &sourceHandle{src: source.NewFileSource(cfg.DataFile), close: func() {}}, nil

	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &sourceHandle{src: source.NewPostgresSource(pool), pinger: pool, close: pool.Close}, nil

	case config.SourceSQLite:
		s, err := source.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &sourceHandle{src: s, close: func() { _ = s.Close() }}, nil

	case config.SourceS3:
		client, err := source.NewS3Client(ctx, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		return &sourceHandle{src: source.NewS3Source(client, cfg.S3Bucket, cfg.S3Key), close: func() {}}, nil

	case config.SourceMinio:
		client, err := source.NewMinioClient(source.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return &sourceHandle{src: source.NewMinioSource(client, cfg.MinioBucket, cfg.MinioObject), close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func newService(cfg *config.Config, src directory.RecordSource, metrics *telemetry.Metrics, logger zerolog.Logger) (*directory.Service, error) {
	locale, err := cfg.Locale()
	if err != nil {
		return nil, err
	}
	return directory.NewService(src,
		directory.WithLocale(locale),
		directory.WithMetrics(metrics),
		directory.WithLogger(logger),
	), nil
}

// newServer builds the echo instance with global middleware and routes.
// pinger enables /health/db when non-nil.
func newServer(cfg *config.Config, svc *directory.Service, metrics *telemetry.Metrics, pinger db.Pinger, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.ETag(middleware.DefaultCacheConfig()))

	if cfg.AuthEnabled() {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
			Issuer:     cfg.AuthIssuer,
			Leeway:     30 * time.Second,
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"source":  svc.SourceName(),
		})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}
	if metrics != nil {
		e.GET("/metrics", metrics.PrometheusHandler())
	}

	// API groups
	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1 := api.Group("/v1")

	directory.NewHandler(svc, logger).RegisterRoutes(api, apiV1)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	h, err := openSource(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("source", cfg.Source).Msg("failed to open record source")
		return err
	}
	defer h.close()
	logger.Info().Str("source", h.src.Name()).Msg("record source ready")

	metrics := telemetry.NewMetrics()
	svc, err := newService(cfg, h.src, metrics, logger)
	if err != nil {
		return err
	}

	e := newServer(cfg, svc, metrics, h.pinger, logger)
	if cfg.AuthEnabled() {
		logger.Info().Msg("bearer token authentication enabled")
	} else if cfg.IsProduction() {
		logger.Warn().Msg("AUTH_SIGNING_KEY is not set; the directory is served without authentication")
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
