// Package worker runs the background export of monthly summaries.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dinners/internal/amqp"
	"dinners/internal/cache"
	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/sheets"
	"dinners/internal/store"
)

// Exporter rebuilds a month's summary from the store and hands it to the
// writer. It is driven by change messages and by a schedule.
type Exporter struct {
	reader store.SnapshotReader
	roster core.Roster
	writer sheets.SummaryWriter
	logger *log.Logger
	now    func() time.Time

	// written holds a fingerprint of the last summary written per month.
	written cache.Cache[core.YearMonth, string]
}

func NewExporter(reader store.SnapshotReader, roster core.Roster, writer sheets.SummaryWriter, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Exporter{
		reader: reader,
		roster: roster,
		writer: writer,
		logger: logger.WithComponent(log.ComponentWorker),
		now:    time.Now,
	}
}

// SkipUnchanged makes ExportMonth skip the write when the month's summary
// matches the one last written and still held by c.
func (e *Exporter) SkipUnchanged(c cache.Cache[core.YearMonth, string]) *Exporter {
	e.written = c
	return e
}

// ExportMonth writes the current summary of ym.
func (e *Exporter) ExportMonth(ctx context.Context, ym core.YearMonth) error {
	snap, err := e.reader.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("export %s: %w", ym, err)
	}
	summary := sheets.BuildMonthSummary(snap, e.roster, ym)
	fp := fingerprint(summary)
	if e.written != nil && fp != "" {
		if last, ok := e.written.Get(ym); ok && last == fp {
			e.logger.DebugContext(ctx, "Month unchanged, export skipped", log.FieldMonth, ym.String())
			return nil
		}
	}
	if err := e.writer.WriteMonthSummary(ctx, summary); err != nil {
		if e.written != nil {
			e.written.Delete(ym)
		}
		return fmt.Errorf("export %s: %w", ym, err)
	}
	if e.written != nil && fp != "" {
		e.written.Set(ym, fp)
	}
	e.logger.InfoContext(ctx, "Month exported",
		log.FieldMonth, ym.String(),
		log.FieldRecords, len(summary.Dinners))
	return nil
}

// HandleLedgerChanged exports the month the changed date falls in.
func (e *Exporter) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	e.logger.DebugContext(ctx, "Processing ledger change",
		log.FieldMessageID, msg.ID,
		log.FieldDateKey, msg.DateKey,
		log.FieldOperation, msg.Op)
	return e.ExportMonth(ctx, msg.DateKey.YearMonth())
}

// ExportRecent exports the current and the previous month. Both are
// attempted even if the first fails.
func (e *Exporter) ExportRecent(ctx context.Context) error {
	cur := core.MonthOf(e.now())
	return errors.Join(e.ExportMonth(ctx, cur), e.ExportMonth(ctx, cur.Prev()))
}

// Run calls ExportRecent on the cron schedule spec until ctx ends.
func (e *Exporter) Run(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := e.ExportRecent(ctx); err != nil {
			e.logger.ErrorContext(ctx, "Scheduled export failed", log.FieldError, err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse export schedule %q: %w", spec, err)
	}
	c.Start()
	e.logger.InfoContext(ctx, "Export schedule started", "schedule", spec)
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func fingerprint(s sheets.MonthSummary) string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}
