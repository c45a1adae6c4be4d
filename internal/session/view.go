package session

import (
	"github.com/shopspring/decimal"

	"dinners/internal/core"
	"dinners/internal/editor"
)

type (
	// View is everything the page needs to render.
	View struct {
		Loading    bool           `json:"loading"`
		Month      string         `json:"month"`
		Year       int            `json:"year"`
		MonthNum   int            `json:"month_number"`
		Dates      []core.DateKey `json:"dates"`
		DinnerDays []core.DateKey `json:"dinner_days"`
		Totals     []TotalRow     `json:"totals"`
		Editor     *EditorView    `json:"editor,omitempty"`
		Detail     *DetailView    `json:"detail,omitempty"`
		Notice     *Notice        `json:"notice,omitempty"`
	}

	TotalRow struct {
		Person core.PersonID `json:"person"`
		Amount string        `json:"amount"`
	}

	AttendeeOption struct {
		Person  core.PersonID `json:"person"`
		Checked bool          `json:"checked"`
	}

	PriceOption struct {
		Index    int    `json:"index"`
		Price    string `json:"price"`
		Selected bool   `json:"selected"`
	}

	EditorView struct {
		Date             core.DateKey     `json:"date"`
		Existing         bool             `json:"existing"`
		Attendees        []AttendeeOption `json:"attendees"`
		Prices           []PriceOption    `json:"prices"`
		CustomSelected   bool             `json:"custom_selected"`
		CustomPrice      string           `json:"custom_price"`
		ConfirmingDelete bool             `json:"confirming_delete"`
	}

	DetailEntry struct {
		Date  core.DateKey `json:"date"`
		Price string       `json:"price"`
	}

	DetailView struct {
		Person  core.PersonID `json:"person"`
		Entries []DetailEntry `json:"entries"`
		Total   string        `json:"total"`
	}
)

// Render snapshots the session into a View.
func (s *Session) Render() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	ym := s.state.Visible
	v := View{
		Loading:    s.loading,
		Month:      ym.String(),
		Year:       ym.Year,
		MonthNum:   int(ym.Month),
		Dates:      s.ledger.Keys(),
		DinnerDays: core.DinnerDays(s.ledger, ym),
		Notice:     s.notice,
	}
	v.Totals = totalRows(s.totalsLocked(ym))
	if d := s.state.Editing; d != nil {
		v.Editor = s.editorView(d)
	}
	if p := s.state.Detail; p != nil {
		v.Detail = detailView(*p, core.MonthlyDetail(s.ledger, ym, *p))
	}
	return v
}

func (s *Session) editorView(d *editor.Draft) *EditorView {
	ev := &EditorView{
		Date:             d.Date,
		Existing:         s.ledger.Has(d.Date),
		CustomSelected:   d.Preset == editor.CustomPreset,
		CustomPrice:      d.CustomPrice,
		ConfirmingDelete: d.ConfirmingDelete,
	}
	checked := make([]core.PersonID, 0, len(d.Attendees))
	for p := range d.Attendees {
		checked = append(checked, p)
	}
	// roster first, then anyone already on the record
	for _, p := range s.roster.Order(append(append([]core.PersonID(nil), s.roster.People...), checked...)) {
		ev.Attendees = append(ev.Attendees, AttendeeOption{Person: p, Checked: d.Checked(p)})
	}
	for i, price := range s.roster.Presets {
		ev.Prices = append(ev.Prices, PriceOption{Index: i, Price: price.String(), Selected: d.Preset == i})
	}
	return ev
}

func detailView(p core.PersonID, entries []core.DetailEntry) *DetailView {
	dv := &DetailView{Person: p, Entries: []DetailEntry{}}
	total := decimal.Zero
	for _, e := range entries {
		dv.Entries = append(dv.Entries, DetailEntry{Date: e.Date, Price: e.Price.String()})
		total = total.Add(e.Price)
	}
	dv.Total = total.String()
	return dv
}

func totalRows(totals []core.PersonTotal) []TotalRow {
	rows := make([]TotalRow, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, TotalRow{Person: t.Person, Amount: t.Amount.String()})
	}
	return rows
}

// TotalsView is Totals formatted for display.
func (s *Session) TotalsView(ym core.YearMonth) []TotalRow {
	return totalRows(s.Totals(ym))
}

// DetailView is Detail formatted for display, with the month's sum.
func (s *Session) DetailView(person core.PersonID, ym core.YearMonth) *DetailView {
	return detailView(person, s.Detail(person, ym))
}

// Totals returns the per-person totals of ym in display order.
func (s *Session) Totals(ym core.YearMonth) []core.PersonTotal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked(ym)
}

func (s *Session) totalsLocked(ym core.YearMonth) []core.PersonTotal {
	if rows, ok := s.totals.Get(ym); ok {
		return rows
	}
	rows := core.TotalRows(core.MonthlyTotals(s.ledger, s.roster, ym), s.roster)
	s.totals.Set(ym, rows)
	return rows
}

// Detail returns person's dinners in ym. Empty, never nil, when none.
func (s *Session) Detail(person core.PersonID, ym core.YearMonth) []core.DetailEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.MonthlyDetail(s.ledger, ym, person)
}

// IsDinnerDay reports whether key has a record.
func (s *Session) IsDinnerDay(key core.DateKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Has(key)
}
