package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin"

	"dinners/internal/backend"
	"dinners/internal/cli"
	"dinners/internal/config"
	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/report"
)

func main() {
	cli.LoadEnvFile()

	month := kingpin.Flag("month", "Month to report (YYYY-MM)").Default(time.Now().Format("2006-01")).String()
	person := kingpin.Flag("person", "Only show this housemate's dinners").String()
	xlsxPath := kingpin.Flag("xlsx", "Write an xlsx workbook to this path instead of text").String()
	backendType := kingpin.Flag("backend", "Data backend").Envar("DATA_BACKEND").Default(config.BackendMemory).Enum(backend.TypeStrings()...)
	dataFile := kingpin.Flag("data-file", "JSON file of the memory backend").Envar("DATA_FILE").String()
	dbPath := kingpin.Flag("db", "SQLite database path").Envar("SQLITE_DB_PATH").Default("./data/dinners.db").String()
	kingpin.Parse()

	logger := cli.SetupLogger(envOr("LOG_LEVEL", "warn")).WithComponent(log.ComponentReport)

	ym, err := core.ParseYearMonth(*month)
	if err != nil {
		kingpin.Fatalf("invalid --month: %v", err)
	}

	cfg := config.Load()
	cfg.DataBackend = *backendType
	cfg.DataFile = *dataFile
	cfg.SQLiteDBPath = *dbPath
	cfg.AMQPURL = "" // one-shot reads need no change feed
	if err := cfg.Validate(); err != nil {
		kingpin.Fatalf("%v", err)
	}
	roster := cli.LoadRoster(logger, cfg)
	if *person != "" && !roster.Knows(core.PersonID(*person)) {
		logger.Warn("Person is not on the roster", log.FieldPerson, *person)
	}

	opts, err := backend.FromAppConfig(cfg)
	if err != nil {
		kingpin.Fatalf("%v", err)
	}
	ctx := context.Background()
	res, err := backend.NewFactory(logger).Create(ctx, opts)
	if err != nil {
		kingpin.Fatalf("open backend: %v", err)
	}
	defer res.Cleanup()

	snap, err := res.Store.Snapshot(ctx)
	if err != nil {
		kingpin.Fatalf("read dinners: %v", err)
	}
	r := report.Build(snap, roster, ym, core.PersonID(*person))

	if *xlsxPath != "" {
		data, err := report.XLSX(r)
		if err != nil {
			kingpin.Fatalf("render workbook: %v", err)
		}
		if err := os.WriteFile(*xlsxPath, data, 0o644); err != nil {
			kingpin.Fatalf("write workbook: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *xlsxPath)
		return
	}
	if err := report.WriteText(os.Stdout, r); err != nil {
		kingpin.Fatalf("%v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
