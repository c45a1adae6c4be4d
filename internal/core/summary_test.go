package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func scenario() (Ledger, Roster) {
	roster := Roster{
		People:  []PersonID{"A", "B"},
		Presets: []decimal.Decimal{MustPrice("7"), MustPrice("15")},
	}
	l := Ledger{
		"2024-03-05": {Attendees: []PersonID{"A"}, Price: MustPrice("7")},
		"2024-03-12": {Attendees: []PersonID{"A", "B"}, Price: MustPrice("15")},
		"2024-04-01": {Attendees: []PersonID{"B"}, Price: MustPrice("7")},
	}
	return l, roster
}

func TestMonthlyTotals(t *testing.T) {
	l, roster := scenario()
	cases := []struct {
		ym   YearMonth
		want map[PersonID]string
	}{
		{YearMonth{2024, time.March}, map[PersonID]string{"A": "22", "B": "15"}},
		{YearMonth{2024, time.April}, map[PersonID]string{"A": "0", "B": "7"}},
		{YearMonth{2023, time.March}, map[PersonID]string{"A": "0", "B": "0"}},
	}
	for _, tc := range cases {
		got := MonthlyTotals(l, roster, tc.ym)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: expected %d entries, got %v", tc.ym, len(tc.want), got)
		}
		for p, w := range tc.want {
			if !got[p].Equal(MustPriceOrZero(w)) {
				t.Fatalf("%s: %s expected %s, got %s", tc.ym, p, w, got[p])
			}
		}
	}
}

func TestMonthlyTotalsEmptyAttendeesAndStrangers(t *testing.T) {
	_, roster := scenario()
	l := Ledger{
		"2024-03-01": {Attendees: nil, Price: MustPrice("15")},
		"2024-03-02": {Attendees: []PersonID{"Guest"}, Price: MustPrice("7.5")},
	}
	got := MonthlyTotals(l, roster, YearMonth{2024, time.March})
	if !got["A"].IsZero() || !got["B"].IsZero() {
		t.Fatalf("empty dinner should contribute nothing: %v", got)
	}
	if !got["Guest"].Equal(MustPrice("7.5")) {
		t.Fatalf("expected guest total 7.5, got %s", got["Guest"])
	}
	rows := TotalRows(got, roster)
	if len(rows) != 3 || rows[0].Person != "A" || rows[1].Person != "B" || rows[2].Person != "Guest" {
		t.Fatalf("unexpected row order: %v", rows)
	}
}

func TestMonthlyTotalsOrderIndependent(t *testing.T) {
	_, roster := scenario()
	a := Ledger{}
	b := Ledger{}
	entries := []struct {
		k DateKey
		r DinnerRecord
	}{
		{"2024-03-05", DinnerRecord{Attendees: []PersonID{"A"}, Price: MustPrice("7")}},
		{"2024-03-05", DinnerRecord{Attendees: []PersonID{"A", "B"}, Price: MustPrice("15")}},
		{"2024-03-09", DinnerRecord{Attendees: []PersonID{"B"}, Price: MustPrice("9")}},
	}
	for _, e := range entries {
		a[e.k] = e.r
	}
	// Same final state reached in a different order, with a detour.
	b["2024-03-09"] = entries[2].r
	b["2024-03-07"] = entries[0].r
	delete(b, "2024-03-07")
	b["2024-03-05"] = entries[1].r

	ym := YearMonth{2024, time.March}
	ta, tb := MonthlyTotals(a, roster, ym), MonthlyTotals(b, roster, ym)
	for _, p := range roster.People {
		if !ta[p].Equal(tb[p]) {
			t.Fatalf("%s: %s != %s", p, ta[p], tb[p])
		}
	}
}

func TestRepeatedAttendeeChargedOnce(t *testing.T) {
	_, roster := scenario()
	l := Ledger{"2024-03-05": {Attendees: []PersonID{"A", "A", "B"}, Price: MustPrice("7")}}
	totals := MonthlyTotals(l, roster, YearMonth{2024, time.March})
	if !totals["A"].Equal(MustPrice("7")) || !totals["B"].Equal(MustPrice("7")) {
		t.Fatalf("totals = %v, want A=7 B=7", totals)
	}

	rec := DinnerRecord{Attendees: []PersonID{"B", "A", "B", "A"}, Price: MustPrice("7")}
	got := rec.Normalized().Attendees
	if len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Fatalf("Normalized = %v, want [B A]", got)
	}
	if len(rec.Attendees) != 4 {
		t.Fatal("Normalized mutated the receiver")
	}
}

func TestMonthlyDetail(t *testing.T) {
	l, _ := scenario()
	got := MonthlyDetail(l, YearMonth{2024, time.March}, "A")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got[0].Date != "2024-03-05" || !got[0].Price.Equal(MustPrice("7")) {
		t.Fatalf("unexpected first entry %v", got[0])
	}
	if got[1].Date != "2024-03-12" || !got[1].Price.Equal(MustPrice("15")) {
		t.Fatalf("unexpected second entry %v", got[1])
	}

	none := MonthlyDetail(l, YearMonth{2024, time.April}, "A")
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil detail, got %#v", none)
	}
}

func TestIsDinnerDayIgnoresTimeOfDay(t *testing.T) {
	l, _ := scenario()
	loc := time.FixedZone("UTC+8", 8*3600)
	for _, ts := range []time.Time{
		time.Date(2024, 3, 5, 0, 0, 0, 0, loc),
		time.Date(2024, 3, 5, 23, 59, 59, 0, loc),
		time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC),
	} {
		if !l.IsDinnerDay(ts) {
			t.Fatalf("expected dinner day for %v", ts)
		}
	}
	if l.IsDinnerDay(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected dinner on 2024-03-06")
	}
}

func TestApplySnapshotReplaces(t *testing.T) {
	old, _ := scenario()
	snap := Ledger{"2025-01-01": {Price: MustPrice("7")}}
	got := ApplySnapshot(old, snap)
	if len(got) != 1 || !got.Has("2025-01-01") {
		t.Fatalf("snapshot not applied: %v", got)
	}
	if got := ApplySnapshot(old, nil); got == nil || len(got) != 0 {
		t.Fatalf("nil snapshot should yield an empty ledger, got %v", got)
	}
}

func TestDinnerDays(t *testing.T) {
	l, _ := scenario()
	days := DinnerDays(l, YearMonth{2024, time.March})
	if len(days) != 2 || days[0] != "2024-03-05" || days[1] != "2024-03-12" {
		t.Fatalf("unexpected days %v", days)
	}
}

// MustPriceOrZero lets the tables spell zero as "0".
func MustPriceOrZero(s string) decimal.Decimal {
	if s == "0" {
		return decimal.Zero
	}
	return MustPrice(s)
}
