package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dinners/internal/amqp"
	"dinners/internal/cache"
	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/sheets"
	sheetsmem "dinners/internal/sheets/memory"
	"dinners/internal/store"
	"dinners/internal/store/memory"
)

var roster = core.Roster{
	People:  []core.PersonID{"A", "B"},
	Presets: []decimal.Decimal{core.MustPrice("7"), core.MustPrice("15")},
}

func seededStore() *memory.Store {
	return memory.New(core.Ledger{
		"2024-03-05": {Attendees: []core.PersonID{"A"}, Price: core.MustPrice("7")},
		"2024-03-12": {Attendees: []core.PersonID{"A", "B"}, Price: core.MustPrice("15")},
		"2024-04-01": {Attendees: []core.PersonID{"B"}, Price: core.MustPrice("7")},
	})
}

func TestHandleLedgerChangedExportsThatMonth(t *testing.T) {
	w := sheetsmem.New()
	e := NewExporter(seededStore(), roster, w, log.Discard())

	msg := amqp.NewLedgerChangedMessage("peer", "2024-04-01", store.OpUpsert)
	if err := e.HandleLedgerChanged(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	s, ok := w.Summary(core.YearMonth{Year: 2024, Month: 4})
	if !ok {
		t.Fatal("april not exported")
	}
	if len(s.Totals) != 2 || !s.Totals[0].Amount.IsZero() || !s.Totals[1].Amount.Equal(core.MustPrice("7")) {
		t.Fatalf("unexpected april totals %+v", s.Totals)
	}
	if _, ok := w.Summary(core.YearMonth{Year: 2024, Month: 3}); ok {
		t.Fatal("march should not be exported")
	}
}

func TestExportRecent(t *testing.T) {
	w := sheetsmem.New()
	e := NewExporter(seededStore(), roster, w, log.Discard())
	e.now = func() time.Time { return time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC) }

	if err := e.ExportRecent(context.Background()); err != nil {
		t.Fatalf("export: %v", err)
	}
	march, ok := w.Summary(core.YearMonth{Year: 2024, Month: 3})
	if !ok || len(march.Dinners) != 2 || !march.Totals[0].Amount.Equal(core.MustPrice("22")) {
		t.Fatalf("unexpected march summary %+v", march)
	}
	if _, ok := w.Summary(core.YearMonth{Year: 2024, Month: 4}); !ok {
		t.Fatal("april not exported")
	}
}

type failingWriter struct{ calls int }

func (f *failingWriter) WriteMonthSummary(context.Context, sheets.MonthSummary) error {
	f.calls++
	return errors.New("quota exceeded")
}

func TestExportRecentAttemptsBothMonths(t *testing.T) {
	fw := &failingWriter{}
	e := NewExporter(seededStore(), roster, fw, log.Discard())
	if err := e.ExportRecent(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if fw.calls != 2 {
		t.Fatalf("writer called %d times, want 2", fw.calls)
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	e := NewExporter(seededStore(), roster, sheetsmem.New(), log.Discard())
	if err := e.Run(context.Background(), "not a schedule"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	e := NewExporter(seededStore(), roster, sheetsmem.New(), log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, "@every 1h") }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSkipUnchangedWritesOncePerChange(t *testing.T) {
	st := seededStore()
	w := sheetsmem.New()
	e := NewExporter(st, roster, w, log.Discard()).
		SkipUnchanged(cache.NewLRUCache[core.YearMonth, string](8, time.Hour))
	april := core.YearMonth{Year: 2024, Month: 4}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := e.ExportMonth(ctx, april); err != nil {
			t.Fatalf("export %d: %v", i, err)
		}
	}
	if w.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", w.Writes())
	}

	rec := core.DinnerRecord{Attendees: []core.PersonID{"A", "B"}, Price: core.MustPrice("9")}
	if err := st.Upsert(ctx, "2024-04-02", rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := e.ExportMonth(ctx, april); err != nil {
		t.Fatalf("export after change: %v", err)
	}
	if w.Writes() != 2 {
		t.Fatalf("writes = %d, want 2", w.Writes())
	}
}

func TestSkipUnchangedRetriesAfterFailure(t *testing.T) {
	fw := &failingWriter{}
	e := NewExporter(seededStore(), roster, fw, log.Discard()).
		SkipUnchanged(cache.NewLRUCache[core.YearMonth, string](8, time.Hour))
	april := core.YearMonth{Year: 2024, Month: 4}
	for i := 0; i < 2; i++ {
		if err := e.ExportMonth(context.Background(), april); err == nil {
			t.Fatal("expected error")
		}
	}
	if fw.calls != 2 {
		t.Fatalf("writer called %d times, want 2", fw.calls)
	}
}
