// Command server runs the incident dashboard API: SQLite-backed metrics
// endpoints, the admin update trigger, Prometheus metrics, optional OTLP
// tracing, and a cron-scheduled retention job.
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
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/opspulse/incident-insights/internal/config"
	httpapi "github.com/opspulse/incident-insights/internal/http"
	"github.com/opspulse/incident-insights/internal/http/handlers"
	"github.com/opspulse/incident-insights/internal/observability"
	"github.com/opspulse/incident-insights/internal/pagerduty"
	"github.com/opspulse/incident-insights/internal/repo"
	"github.com/opspulse/incident-insights/internal/services"
	"github.com/opspulse/incident-insights/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=…".
var version = "dev"

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    sysutil.IsTruthy(os.Getenv("LOG_NO_COLOR")),
		})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("could not open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin failed; continuing without it")
		}
	}

	pdCfg, err := config.LoadPagerDutyConfig(cfg.PDConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PDConfigPath).Msg("could not load service directory")
	}
	dir, err := pdCfg.Directory()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid service directory")
	}

	loc := cfg.Location()
	// PD_TOKEN overrides the directory file so the secret can live outside it.
	token := sysutil.FirstNonEmpty(os.Getenv("PD_TOKEN"), pdCfg.Token)
	client := pagerduty.NewClient(pagerduty.Config{
		BaseURL:       cfg.Fetch.BaseURL,
		Token:         token,
		ListTimeout:   cfg.Fetch.ListTimeout,
		EnrichTimeout: cfg.Fetch.EnrichTimeout,
		Retry:         pagerduty.RetryPolicy{MaxAttempts: cfg.Fetch.RetryAttempts, Delay: cfg.Fetch.RetryDelay},
		PageSize:      cfg.Fetch.PageSize,
		Logger:        log.With().Str("component", "pagerduty").Logger(),
	})

	updateSvc := &services.UpdateService{
		DB:         db,
		API:        client,
		Directory:  dir,
		Loc:        loc,
		Log:        log.Logger,
		BatchSize:  cfg.Fetch.BatchSize,
		BatchPause: cfg.Fetch.BatchPause,
	}
	runner := &services.UpdateRunner{
		Service: updateSvc,
		Timeout: cfg.UpdateTimeout,
		Log:     log.Logger,
	}
	metricsSvc := &services.MetricsService{
		DB:              db,
		Loc:             loc,
		IncidentURLBase: cfg.IncidentURLBase,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Handlers:  handlers.New(metricsSvc, runner, dir, db, loc, cfg.UpdateMaxDays),
		Directory: dir,
	}, cfg)

	// Scheduled retention: delete records past the horizon once a day.
	var sched *cron.Cron
	if cfg.RetentionDays > 0 {
		sched = cron.New()
		if _, err := sched.AddFunc(cfg.RetentionCron, func() {
			deleted, err := repo.DeleteOlderThan(context.Background(), db, cfg.RetentionDays, loc)
			if err != nil {
				log.Error().Err(err).Msg("scheduled retention failed")
				return
			}
			log.Info().Int64("deleted", deleted).Int("days", cfg.RetentionDays).Msg("retention sweep")
		}); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.RetentionCron).Msg("invalid retention schedule")
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Int("services", dir.Len()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if sched != nil {
		<-sched.Stop().Done()
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
