// Package memory keeps exported summaries in process, for tests and for
// running without a spreadsheet.
package memory

import (
	"context"
	"sync"

	"dinners/internal/core"
	"dinners/internal/sheets"
)

type Writer struct {
	mu     sync.Mutex
	byMon  map[core.YearMonth]sheets.MonthSummary
	writes int
}

var _ sheets.SummaryWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{byMon: map[core.YearMonth]sheets.MonthSummary{}}
}

func (w *Writer) WriteMonthSummary(_ context.Context, s sheets.MonthSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byMon[s.Month] = s
	w.writes++
	return nil
}

// Summary returns the last summary written for ym.
func (w *Writer) Summary(ym core.YearMonth) (sheets.MonthSummary, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.byMon[ym]
	return s, ok
}

// Writes counts every WriteMonthSummary call.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
