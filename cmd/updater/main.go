// Command updater runs one fetch-and-store pass from the command line. It is
// the batch counterpart of the dashboard's admin trigger: same pipeline, but
// with explicit flags, an interrupt handler that reports what was persisted,
// and optional summary/cleanup passes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opspulse/incident-insights/internal/config"
	"github.com/opspulse/incident-insights/internal/pagerduty"
	"github.com/opspulse/incident-insights/internal/repo"
	"github.com/opspulse/incident-insights/internal/services"
	"github.com/opspulse/incident-insights/internal/sysutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		days        int
		startDate   string
		endDate     string
		serviceList string
		showSummary bool
		cleanupDays int
		skipFetch   bool
	)

	flag.IntVar(&days, "days", services.DefaultWindowDays, "trailing window in days")
	flag.StringVar(&startDate, "start", "", "window start date (YYYY-MM-DD), overrides -days")
	flag.StringVar(&endDate, "end", "", "window end date (YYYY-MM-DD), defaults to today")
	flag.StringVar(&serviceList, "service", "", "comma-separated service ids (default: all configured)")
	flag.BoolVar(&showSummary, "summary", false, "print the window summary after the run")
	flag.IntVar(&cleanupDays, "cleanup", 0, "delete records older than N days after the run")
	flag.BoolVar(&skipFetch, "skip-fetch", false, "skip the fetch pass (summary/cleanup only)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    sysutil.IsTruthy(os.Getenv("LOG_NO_COLOR")),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pdCfg, err := config.LoadPagerDutyConfig(cfg.PDConfigPath)
	if err != nil {
		return fmt.Errorf("load service directory %s: %w", cfg.PDConfigPath, err)
	}
	dir, err := pdCfg.Directory()
	if err != nil {
		return err
	}

	loc := cfg.Location()

	if !skipFetch {
		client := pagerduty.NewClient(pagerduty.Config{
			BaseURL:       cfg.Fetch.BaseURL,
			Token:         sysutil.FirstNonEmpty(os.Getenv("PD_TOKEN"), pdCfg.Token),
			ListTimeout:   cfg.Fetch.ListTimeout,
			EnrichTimeout: cfg.Fetch.EnrichTimeout,
			Retry:         pagerduty.RetryPolicy{MaxAttempts: cfg.Fetch.RetryAttempts, Delay: cfg.Fetch.RetryDelay},
			PageSize:      cfg.Fetch.PageSize,
			Logger:        log.With().Str("component", "pagerduty").Logger(),
		})
		svc := &services.UpdateService{
			DB:         db,
			API:        client,
			Directory:  dir,
			Loc:        loc,
			Log:        log.Logger,
			BatchSize:  cfg.Fetch.BatchSize,
			BatchPause: cfg.Fetch.BatchPause,
		}

		var serviceIDs []string
		if serviceList != "" {
			for _, id := range strings.Split(serviceList, ",") {
				if id = strings.TrimSpace(id); id != "" {
					serviceIDs = append(serviceIDs, id)
				}
			}
		}

		result, err := svc.Run(ctx, services.UpdateRequest{
			Days:       days,
			StartDate:  startDate,
			EndDate:    endDate,
			ServiceIDs: serviceIDs,
		})
		if err != nil {
			// An interrupted run has still persisted completed batches;
			// report that before exiting.
			if result != nil && errors.Is(err, context.Canceled) {
				log.Warn().
					Int("stored", result.Stored).
					Int("fetched", result.Fetched).
					Msg("interrupted; completed batches were kept")
				return err
			}
			return err
		}
		log.Info().
			Int("fetched", result.Fetched).
			Int("stored", result.Stored).
			Int("escalated", result.Escalated).
			Float64("seconds", result.Duration).
			Msg("update finished")
	}

	if cleanupDays > 0 {
		deleted, err := repo.DeleteOlderThan(ctx, db, cleanupDays, loc)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		log.Info().Int64("deleted", deleted).Int("days", cleanupDays).Msg("cleanup finished")
	}

	if showSummary {
		metrics := &services.MetricsService{DB: db, Loc: loc, IncidentURLBase: cfg.IncidentURLBase}
		sum, err := metrics.Summary(ctx, days)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		fmt.Printf("window: last %d day(s)\n", sum.PeriodDays)
		fmt.Printf("incidents: %d total, %d open, %d resolved\n", sum.TotalIncidents, sum.Triggered, sum.Resolved)
		fmt.Printf("escalated: %d (%.2f%%)\n", sum.Escalated, sum.EscalationRate)
		fmt.Printf("services with incidents: %d\n", sum.ServicesCount)
		for _, s := range sum.Services {
			fmt.Printf("  %-30s %4d incidents, %3d escalated (%.1f%%)\n",
				s.ServiceName, s.TotalIncidents, s.Escalated, s.EscalationRate)
		}
	}

	return nil
}
