package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PersonTotal is one row of the monthly summary.
type PersonTotal struct {
	Person PersonID
	Amount decimal.Decimal
}

// DetailEntry is one dinner in a person's itemised history.
type DetailEntry struct {
	Date  DateKey
	Price decimal.Decimal
}

// IsDinnerDay reports whether a dinner is recorded on t's calendar day.
func (l Ledger) IsDinnerDay(t time.Time) bool {
	return l.Has(NewDateKey(t))
}

// MonthlyTotals sums, per person, the price of every dinner attended in ym.
// Every roster member is present in the result, at zero if they attended
// nothing. Attendees missing from the roster get their own entry. A person
// listed twice on one dinner is charged once.
func MonthlyTotals(l Ledger, roster Roster, ym YearMonth) map[PersonID]decimal.Decimal {
	totals := make(map[PersonID]decimal.Decimal, len(roster.People))
	for _, p := range roster.People {
		totals[p] = decimal.Zero
	}
	for key, rec := range l {
		if !ym.Contains(key) {
			continue
		}
		for _, p := range rec.Normalized().Attendees {
			totals[p] = totals[p].Add(rec.Price)
		}
	}
	return totals
}

// TotalRows lays totals out in display order.
func TotalRows(totals map[PersonID]decimal.Decimal, roster Roster) []PersonTotal {
	people := make([]PersonID, 0, len(totals))
	for p := range totals {
		people = append(people, p)
	}
	rows := make([]PersonTotal, 0, len(totals))
	for _, p := range roster.Order(people) {
		rows = append(rows, PersonTotal{Person: p, Amount: totals[p]})
	}
	return rows
}

// MonthlyDetail lists, in ascending date order, the dinners person attended
// in ym. The result is empty, never nil, when there are none.
func MonthlyDetail(l Ledger, ym YearMonth, person PersonID) []DetailEntry {
	out := []DetailEntry{}
	for _, key := range l.Keys() {
		if !ym.Contains(key) {
			continue
		}
		rec := l[key]
		if rec.Attends(person) {
			out = append(out, DetailEntry{Date: key, Price: rec.Price})
		}
	}
	return out
}

// DinnerDays returns the recorded dates inside ym, ascending.
func DinnerDays(l Ledger, ym YearMonth) []DateKey {
	var out []DateKey
	for _, key := range l.Keys() {
		if ym.Contains(key) {
			out = append(out, key)
		}
	}
	return out
}
