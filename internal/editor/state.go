// Package editor holds the selection and edit state of the ledger UI as an
// immutable value with pure transitions.
//
// The editor sub-state (Idle or Editing) and the detail sub-state are
// independent: a person's history can stay open while a date is edited.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dinners/internal/core"
	"dinners/internal/store"
)

// CustomPreset marks a draft whose price comes from the free-form override.
const CustomPreset = -1

var (
	ErrNotEditing           = errors.New("no date is open for editing")
	ErrUnknownPerson        = errors.New("person is not on the roster")
	ErrUnknownPreset        = errors.New("no such price preset")
	ErrConfirmationRequired = errors.New("delete must be confirmed first")
)

type (
	// Draft is the in-progress edit of one date.
	Draft struct {
		Date             core.DateKey
		Attendees        map[core.PersonID]bool
		Preset           int
		CustomPrice      string
		ConfirmingDelete bool
	}

	// State is the complete selection state. The zero value is Idle with no
	// detail open and no visible month.
	State struct {
		Editing *Draft
		Detail  *core.PersonID
		Visible core.YearMonth
	}
)

// New returns an Idle state showing ym.
func New(ym core.YearMonth) State {
	return State{Visible: ym}
}

func (s State) IsEditing() bool { return s.Editing != nil }
func (s State) IsViewingDetail() bool { return s.Detail != nil }

func (d *Draft) clone() *Draft {
	out := *d
	out.Attendees = make(map[core.PersonID]bool, len(d.Attendees))
	for p, on := range d.Attendees {
		if on {
			out.Attendees[p] = true
		}
	}
	return &out
}

// Checked reports whether p is marked as attending.
func (d *Draft) Checked(p core.PersonID) bool {
	return d != nil && d.Attendees[p]
}

// OpenEditor starts editing key. An existing record pre-populates the draft:
// its attendees are checked and its price selects the matching preset, or
// fills the override when no preset matches. Otherwise the first preset is
// selected and nobody is checked.
func (s State) OpenEditor(ledger core.Ledger, roster core.Roster, key core.DateKey) State {
	d := &Draft{Date: key, Attendees: map[core.PersonID]bool{}}
	if rec, ok := ledger[key]; ok {
		for _, p := range rec.Attendees {
			d.Attendees[p] = true
		}
		d.Preset = roster.PresetIndex(rec.Price)
		if d.Preset == CustomPreset {
			d.CustomPrice = rec.Price.String()
		}
	}
	s.Editing = d
	return s
}

// ToggleAttendee flips p in the draft. It does nothing when Idle.
func (s State) ToggleAttendee(roster core.Roster, p core.PersonID) (State, error) {
	if s.Editing == nil {
		return s, nil
	}
	if !roster.Knows(p) && !s.Editing.Attendees[p] {
		return s, fmt.Errorf("%w: %q", ErrUnknownPerson, p)
	}
	d := s.Editing.clone()
	if d.Attendees[p] {
		delete(d.Attendees, p)
	} else {
		d.Attendees[p] = true
	}
	d.ConfirmingDelete = false
	s.Editing = d
	return s, nil
}

// SetPriceOption selects preset i and clears any override, so the preset is
// what a commit writes.
func (s State) SetPriceOption(roster core.Roster, i int) (State, error) {
	if s.Editing == nil {
		return s, ErrNotEditing
	}
	if i < 0 || i >= len(roster.Presets) {
		return s, fmt.Errorf("%w: %d", ErrUnknownPreset, i)
	}
	d := s.Editing.clone()
	d.Preset = i
	d.CustomPrice = ""
	s.Editing = d
	return s, nil
}

// SelectCustomPrice switches the draft to the override slot.
func (s State) SelectCustomPrice() (State, error) {
	if s.Editing == nil {
		return s, ErrNotEditing
	}
	d := s.Editing.clone()
	d.Preset = CustomPreset
	s.Editing = d
	return s, nil
}

// SetCustomPrice stores the override text as typed. It is only parsed at
// commit time.
func (s State) SetCustomPrice(text string) (State, error) {
	if s.Editing == nil {
		return s, ErrNotEditing
	}
	d := s.Editing.clone()
	d.CustomPrice = text
	s.Editing = d
	return s, nil
}

// Resolve computes the record a commit would write. A non-empty override
// always wins and must parse as a positive number; an empty override falls
// back to the selected preset.
func (s State) Resolve(roster core.Roster) (core.DateKey, core.DinnerRecord, error) {
	d := s.Editing
	if d == nil {
		return "", core.DinnerRecord{}, ErrNotEditing
	}
	var price decimal.Decimal
	switch {
	case strings.TrimSpace(d.CustomPrice) != "":
		p, err := core.ParsePrice(d.CustomPrice)
		if err != nil {
			return "", core.DinnerRecord{}, err
		}
		price = p
	case d.Preset >= 0 && d.Preset < len(roster.Presets):
		price = roster.Presets[d.Preset]
	default:
		return "", core.DinnerRecord{}, fmt.Errorf("%w: no preset selected and no custom price", core.ErrInvalidPrice)
	}
	people := make([]core.PersonID, 0, len(d.Attendees))
	for p := range d.Attendees {
		people = append(people, p)
	}
	return d.Date, core.DinnerRecord{Attendees: roster.Order(people), Price: price}, nil
}

// Discard closes the editor without writing.
func (s State) Discard() State {
	s.Editing = nil
	return s
}

// RequestDelete arms the delete confirmation for the open date.
func (s State) RequestDelete() (State, error) {
	if s.Editing == nil {
		return s, ErrNotEditing
	}
	d := s.Editing.clone()
	d.ConfirmingDelete = true
	s.Editing = d
	return s, nil
}

// CancelDelete disarms the delete confirmation.
func (s State) CancelDelete() State {
	if s.Editing == nil || !s.Editing.ConfirmingDelete {
		return s
	}
	d := s.Editing.clone()
	d.ConfirmingDelete = false
	s.Editing = d
	return s
}

func (s State) ViewDetail(p core.PersonID) State {
	s.Detail = &p
	return s
}

func (s State) CloseDetail() State {
	s.Detail = nil
	return s
}

func (s State) SetVisibleMonth(ym core.YearMonth) State {
	s.Visible = ym
	return s
}

// Commit resolves the draft and writes it. The returned state is Idle
// whatever the write's outcome; an unresolvable draft leaves the editor
// open and writes nothing.
func (s State) Commit(ctx context.Context, rs store.RecordStore, roster core.Roster) (State, error) {
	key, rec, err := s.Resolve(roster)
	if err != nil {
		return s, err
	}
	idle := s.Discard()
	return idle, rs.Upsert(ctx, key, rec)
}

// Remove deletes the open date once the deletion has been confirmed. The
// returned state is Idle whatever the write's outcome.
func (s State) Remove(ctx context.Context, rs store.RecordStore) (State, error) {
	if s.Editing == nil {
		return s, ErrNotEditing
	}
	if !s.Editing.ConfirmingDelete {
		return s, ErrConfirmationRequired
	}
	key := s.Editing.Date
	idle := s.Discard()
	return idle, rs.Remove(ctx, key)
}
