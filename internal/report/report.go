// Package report renders a month of the ledger for the command line: as an
// aligned text table or as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"dinners/internal/core"
	"dinners/internal/sheets"
)

// Report is one month's summary, optionally narrowed to one person's
// itemised dinners.
type Report struct {
	sheets.MonthSummary
	Person core.PersonID
	Detail []core.DetailEntry
}

// Build derives the report of ym. When person is non-empty the report also
// carries their detail.
func Build(l core.Ledger, roster core.Roster, ym core.YearMonth, person core.PersonID) Report {
	r := Report{MonthSummary: sheets.BuildMonthSummary(l, roster, ym), Person: person}
	if person != "" {
		r.Detail = core.MonthlyDetail(l, ym, person)
	}
	return r
}

// DetailTotal sums the person's detail.
func (r Report) DetailTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range r.Detail {
		sum = sum.Add(e.Price)
	}
	return sum
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func names(people []core.PersonID) string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = string(p)
	}
	return strings.Join(out, ", ")
}

// WriteText prints the report as aligned columns.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Dinners %s\n\n", r.Month)

	fmt.Fprintln(tw, "Person\tTotal")
	for _, t := range r.Totals {
		fmt.Fprintf(tw, "%s\t%s\n", t.Person, amount(t.Amount))
	}
	fmt.Fprintf(tw, "Total\t%s\n", amount(r.Total()))
	fmt.Fprintln(tw)
	if r.Person != "" {
		fmt.Fprintf(tw, "%s: %d dinners\n", r.Person, len(r.Detail))
		fmt.Fprintln(tw, "Date\tPrice")
		for _, e := range r.Detail {
			fmt.Fprintf(tw, "%s\t%s\n", e.Date, amount(e.Price))
		}
		fmt.Fprintf(tw, "Total\t%s\n", amount(r.DetailTotal()))
		return tw.Flush()
	}

	if len(r.Dinners) == 0 {
		fmt.Fprintln(tw, "No dinners recorded.")
		return tw.Flush()
	}
	fmt.Fprintln(tw, "Date\tAttendees\tPrice\tCost")
	for _, d := range r.Dinners {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Date, names(d.Attendees), amount(d.Price), amount(d.Cost()))
	}
	return tw.Flush()
}
