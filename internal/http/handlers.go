package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/session"
)

// eventFunc applies one UI event to the caller's session.
type eventFunc func(r *http.Request, sess *session.Session) error

// event adapts an eventFunc to a POST handler. The page gets redirected back
// to itself; API clients get the updated view.
func (s *Server) event(fn eventFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessionFor(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := r.ParseForm(); err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		if err := fn(r, sess); err != nil {
			s.fail(w, r, err)
			return
		}
		if wantsHTML(r) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		writeJSON(w, r, http.StatusOK, sess.Render())
	}
}

func onDate(r *http.Request, sess *session.Session) error {
	v, err := requiredField(r, "date")
	if err != nil {
		return err
	}
	key, err := core.ParseDateKey(v)
	if err != nil {
		return err
	}
	sess.OnDateKeyClick(key)
	return nil
}

func onMonth(r *http.Request, sess *session.Session) error {
	ym, err := parseYearMonth(r, core.YearMonth{})
	if err != nil {
		return err
	}
	return sess.OnMonthChange(ym.Year, ym.Month)
}

func onAttendee(r *http.Request, sess *session.Session) error {
	p, err := requiredField(r, "person")
	if err != nil {
		return err
	}
	return sess.OnToggleAttendee(core.PersonID(p))
}

// onPrice selects a preset by index, or the custom price with "custom".
func onPrice(r *http.Request, sess *session.Session) error {
	v, err := requiredField(r, "index")
	if err != nil {
		return err
	}
	if v == "custom" {
		return sess.OnSelectCustomPrice()
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: index %q", errBadRequest, v)
	}
	return sess.OnPriceOptionChange(i)
}

func onCustomPrice(r *http.Request, sess *session.Session) error {
	return sess.OnCustomPriceChange(sanitizeInput(r.FormValue("price")))
}

func onSave(_ *http.Request, sess *session.Session) error { return sess.OnSave() }

func onCancel(_ *http.Request, sess *session.Session) error {
	sess.OnCancel()
	return nil
}

func onDelete(_ *http.Request, sess *session.Session) error { return sess.OnDelete() }

func onCancelDelete(_ *http.Request, sess *session.Session) error {
	sess.OnCancelDelete()
	return nil
}

func onConfirmDelete(_ *http.Request, sess *session.Session) error { return sess.OnConfirmDelete() }

func onPerson(r *http.Request, sess *session.Session) error {
	p, err := requiredField(r, "person")
	if err != nil {
		return err
	}
	sess.OnSelectPersonRow(core.PersonID(p))
	return nil
}

func onCloseDetail(_ *http.Request, sess *session.Session) error {
	sess.OnCloseDetail()
	return nil
}

func onDismissNotice(_ *http.Request, sess *session.Session) error {
	sess.DismissNotice()
	return nil
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Render())
}

type totalsResponse struct {
	Month  string             `json:"month"`
	Totals []session.TotalRow `json:"totals"`
}

// handleTotals returns the totals of ?year=&month=, defaulting to the
// session's visible month.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ym, err := parseYearMonth(r, sess.VisibleMonth())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, totalsResponse{Month: ym.String(), Totals: sess.TotalsView(ym)})
}

type detailResponse struct {
	Month string `json:"month"`
	*session.DetailView
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFor(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	person, err := requiredField(r, "person")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ym, err := parseYearMonth(r, sess.VisibleMonth())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, detailResponse{
		Month:      ym.String(),
		DetailView: sess.DetailView(core.PersonID(person), ym),
	})
}

// dayCell is one square of the calendar grid.
type dayCell struct {
	Key     core.DateKey
	Day     int
	InMonth bool
	Dinner  bool
	Today   bool
}

type pageData struct {
	View       session.View
	MonthTitle string
	Weekdays   []string
	Weeks      [][]dayCell
	Prev, Next core.YearMonth
	Error      string
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// calendarWeeks lays ym out in Monday-first weeks, padded with the days of
// the neighbouring months.
func calendarWeeks(ym core.YearMonth, dinners []core.DateKey, today core.DateKey) [][]dayCell {
	isDinner := make(map[core.DateKey]bool, len(dinners))
	for _, k := range dinners {
		isDinner[k] = true
	}
	first := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
	lead := (int(first.Weekday()) + 6) % 7
	start := first.AddDate(0, 0, -lead)

	var weeks [][]dayCell
	for day := start; ; {
		week := make([]dayCell, 7)
		for i := range week {
			key := core.NewDateKey(day)
			week[i] = dayCell{
				Key:     key,
				Day:     day.Day(),
				InMonth: day.Month() == ym.Month,
				Dinner:  isDinner[key],
				Today:   key == today,
			}
			day = day.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
		if day.Month() != ym.Month {
			break
		}
	}
	return weeks
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	sess, err := s.sessionFor(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := sess.Render()
	ym := core.YearMonth{Year: v.Year, Month: time.Month(v.MonthNum)}
	data := pageData{
		View:       v,
		MonthTitle: fmt.Sprintf("%s %d", ym.Month, ym.Year),
		Weekdays:   weekdays,
		Weeks:      calendarWeeks(ym, v.DinnerDays, core.NewDateKey(s.now())),
		Prev:       ym.Prev(),
		Next:       ym.Next(),
		Error:      sanitizeInput(r.URL.Query().Get("error")),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template render failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
