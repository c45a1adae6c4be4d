// Package sheets exports monthly dinner summaries to spreadsheets.
package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"dinners/internal/core"
)

type (
	// SummaryWriter replaces the stored summary for one month.
	SummaryWriter interface {
		WriteMonthSummary(ctx context.Context, s MonthSummary) error
	}

	// DinnerLine is one recorded dinner of the month.
	DinnerLine struct {
		Date      core.DateKey
		Attendees []core.PersonID
		Price     decimal.Decimal
	}

	// MonthSummary is everything exported for one month: the per-person
	// totals and the dinners they were derived from.
	MonthSummary struct {
		Month   core.YearMonth
		Totals  []core.PersonTotal
		Dinners []DinnerLine
	}
)

// BuildMonthSummary derives the summary of ym from the ledger.
func BuildMonthSummary(l core.Ledger, roster core.Roster, ym core.YearMonth) MonthSummary {
	s := MonthSummary{
		Month:  ym,
		Totals: core.TotalRows(core.MonthlyTotals(l, roster, ym), roster),
	}
	for _, key := range core.DinnerDays(l, ym) {
		rec := l[key]
		s.Dinners = append(s.Dinners, DinnerLine{
			Date:      key,
			Attendees: roster.Order(rec.Attendees),
			Price:     rec.Price,
		})
	}
	return s
}

// Cost is what the dinner cost the household in total.
func (d DinnerLine) Cost() decimal.Decimal {
	return d.Price.Mul(decimal.NewFromInt(int64(len(d.Attendees))))
}

// Total is the sum of every person's total.
func (s MonthSummary) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range s.Totals {
		sum = sum.Add(t.Amount)
	}
	return sum
}
