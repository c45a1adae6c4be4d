package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alecthomas/kingpin"
	"golang.org/x/sync/errgroup"

	"dinners/internal/backend"
	"dinners/internal/cache"
	"dinners/internal/cli"
	"dinners/internal/core"
	"dinners/internal/log"
	gsheet "dinners/internal/sheets/google"
	"dinners/internal/worker"
)

func main() {
	once := kingpin.Flag("once", "Export and exit instead of running the schedule").Bool()
	month := kingpin.Flag("month", "Month to export with --once (YYYY-MM); default current and previous").String()
	kingpin.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting dinners-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldErrorType, log.ErrorTypeConfiguration,
			log.FieldError, err)
		os.Exit(1)
	}
	roster := cli.LoadRoster(logger, cfg)

	opts, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Create(context.Background(), opts)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldBackend, cfg.DataBackend, log.FieldError, err)
		os.Exit(1)
	}
	defer res.Cleanup()

	sheetsClient, err := gsheet.NewWithServiceAccount(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleCredentials, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	exporter := worker.NewExporter(res.Store, roster, sheetsClient, logger)

	if *once {
		if err := exportOnce(context.Background(), exporter, *month); err != nil {
			logger.Error("Export failed", log.FieldOperation, log.OpExport, log.FieldError, err)
			os.Exit(1)
		}
		return
	}

	// bursts of changes to one month collapse into a single sheet write
	written := cache.NewLRUCache[core.YearMonth, string](24, 6*time.Hour)
	exporter.SkipUnchanged(written)
	caches := cache.NewManager(logger)
	caches.Register(written)
	caches.StartCleanup(30 * time.Minute)
	defer caches.Stop()

	g, gctx := errgroup.WithContext(context.Background())
	ctx, done := cli.GracefulShutdown(gctx, logger, 30*time.Second, nil)

	// catch up on anything changed while the worker was down
	if err := exporter.ExportRecent(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldOperation, log.OpExport, log.FieldError, err)
	}

	g.Go(func() error {
		return exporter.Run(ctx, cfg.ExportCron)
	})
	if res.Changes != nil {
		g.Go(func() error {
			return res.Changes.ConsumeLedgerChanges(ctx, exporter.HandleLedgerChanged)
		})
	} else {
		logger.Info("No change feed configured, exporting on schedule only", "schedule", cfg.ExportCron)
	}

	err = g.Wait()
	cli.WaitForShutdown(ctx, done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func exportOnce(ctx context.Context, exporter *worker.Exporter, month string) error {
	if month == "" {
		return exporter.ExportRecent(ctx)
	}
	ym, err := core.ParseYearMonth(month)
	if err != nil {
		return err
	}
	return exporter.ExportMonth(ctx, ym)
}
