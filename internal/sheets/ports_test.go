package sheets

import (
	"testing"

	"github.com/shopspring/decimal"

	"dinners/internal/core"
)

func TestBuildMonthSummary(t *testing.T) {
	roster := core.Roster{
		People:  []core.PersonID{"A", "B"},
		Presets: []decimal.Decimal{core.MustPrice("7"), core.MustPrice("15")},
	}
	l := core.Ledger{
		"2024-03-12": {Attendees: []core.PersonID{"B", "A"}, Price: core.MustPrice("15")},
		"2024-03-05": {Attendees: []core.PersonID{"A"}, Price: core.MustPrice("7")},
		"2024-04-01": {Attendees: []core.PersonID{"B"}, Price: core.MustPrice("7")},
	}
	s := BuildMonthSummary(l, roster, core.YearMonth{Year: 2024, Month: 3})

	if len(s.Totals) != 2 || s.Totals[0].Person != "A" || !s.Totals[0].Amount.Equal(core.MustPrice("22")) {
		t.Fatalf("unexpected totals %+v", s.Totals)
	}
	if len(s.Dinners) != 2 || s.Dinners[0].Date != "2024-03-05" {
		t.Fatalf("unexpected dinners %+v", s.Dinners)
	}
	if d := s.Dinners[1]; d.Attendees[0] != "A" || !d.Cost().Equal(core.MustPrice("30")) {
		t.Fatalf("unexpected second dinner %+v", d)
	}
	if !s.Total().Equal(core.MustPrice("37")) {
		t.Fatalf("total = %s, want 37", s.Total())
	}
}
