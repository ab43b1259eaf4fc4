package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/config"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/patient"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/scorealert"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/scoreledger"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/auth"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/db"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/metrics"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/middleware"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/notify"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "monitor-server",
		Short: "Self-assessment trend alerting API",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(purgeTrashCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				migrator := db.NewMigrator(pool, migrations.FS)
				migrator.Schema = schema
				fmt.Printf("Running migrations on schema: %s\n", schema)

				count, err := migrator.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				migrator := db.NewMigrator(pool, migrations.FS)
				migrator.Schema = schema
				statuses, err := migrator.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate every patient's latest day once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.sweeper.Run(ctx)
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				fmt.Printf("Swept %d patient(s): %d alert(s) created, %d failed.\n", res.Patients, res.Created, res.Failed)
				return nil
			})
		},
	}
}

func purgeTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-trash",
		Short: "Remove trashed submissions past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				n, err := a.ledger.PurgeTrash(ctx, time.Now())
				if err != nil {
					return fmt.Errorf("purge failed: %w", err)
				}
				a.metrics.SubmissionsPurged.Add(float64(n))
				fmt.Printf("Purged %d submission(s).\n", n)
				return nil
			})
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// policyFromConfig resolves the named policy and applies the numeric
// overrides.
func policyFromConfig(cfg *config.Config) (scorealert.Policy, error) {
	p, err := scorealert.PolicyByName(cfg.AlertPolicy)
	if err != nil {
		return scorealert.Policy{}, err
	}
	if cfg.AlertMinSubmissions > 0 {
		p.MinSubmissionsPerDay = cfg.AlertMinSubmissions
	}
	if cfg.AlertMinCoverage > 0 {
		p.MinCoverageFraction = cfg.AlertMinCoverage
	}
	return p, nil
}

func withPool(fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, newLogger(cfg), metrics.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// app holds the wired services shared by serve and the one-shot commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool
	metrics   *metrics.Metrics
	publisher notify.Publisher

	patients  *patient.Service
	ledger    *scoreledger.Service
	alerts    *scorealert.Service
	evaluator *scorealert.Evaluator
	sweeper   *scorealert.Sweeper
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (*app, error) {
	policy, err := policyFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, pool: pool, metrics: metrics.New(reg)}
	if cfg.KafkaEnabled() {
		a.publisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaAlertTopic).Msg("publishing alert events to kafka")
	} else {
		a.publisher = notify.NewLogPublisher(logger)
	}

	loc := cfg.DefaultLocation()
	a.patients = patient.NewService(patient.NewRepoPG(pool), loc)

	ledgerRepo := scoreledger.NewRepoPG(pool, loc.String())
	a.ledger = scoreledger.NewService(ledgerRepo, a.patients, cfg.TrashRetentionDays, logger)

	alertRepo := scorealert.NewRepoPG(pool)
	a.evaluator = scorealert.NewEvaluator(alertRepo, ledgerRepo, a.patients, db.NewTxManager(pool), policy,
		scorealert.WithPublisher(a.publisher),
		scorealert.WithPublishTimeout(cfg.EventPublishTimeout),
		scorealert.WithMetrics(a.metrics),
		scorealert.WithLogger(logger),
	)
	a.ledger.SetTrigger(a.evaluator)
	a.alerts = scorealert.NewService(alertRepo, a.patients)
	a.sweeper = scorealert.NewSweeper(a.ledger, a.evaluator, cfg.SweepConcurrency, a.metrics, logger)

	logger.Info().
		Str("policy", cfg.AlertPolicy).
		Int("min_submissions", policy.MinSubmissionsPerDay).
		Float64("min_coverage", policy.MinCoverageFraction).
		Str("default_timezone", loc.String()).
		Msg("alert engine configured")
	return a, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close alert publisher")
	}
	a.pool.Close()
}

func (a *app) newEcho() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger, a.metrics))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	scoreledger.NewHandler(a.ledger).RegisterRoutes(apiV1)
	trendView := scorealert.NewTrendView(a.ledger, a.evaluator)
	scorealert.NewHandler(a.alerts, a.evaluator, a.sweeper, trendView).RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, logger, metrics.NewRegistry())
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	defer a.Close()
	logger.Info().Msg("connected to database")

	e := a.newEcho()

	scheduler := scorealert.NewScheduler(a.ledger, a.sweeper, cfg.PurgeInterval, cfg.SweepInterval, a.metrics, logger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Start(ctx)
	}()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-schedDone
	logger.Info().Msg("server stopped")
	return nil
}
