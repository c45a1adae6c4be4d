package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// PersonID identifies a housemate on the roster.
	PersonID string

	// DinnerRecord is the attendee set and per-person price for one date.
	DinnerRecord struct {
		Attendees []PersonID
		Price     decimal.Decimal // charged to every attendee
	}

	// Ledger maps every recorded date to its dinner.
	Ledger map[DateKey]DinnerRecord

	// Roster is the static household configuration: who can attend and
	// which per-person prices the editor offers.
	Roster struct {
		People  []PersonID
		Presets []decimal.Decimal
	}
)

var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyRoster      = errors.New("roster has no housemates")
	ErrNoPresets        = errors.New("roster has no price presets")
)

func (r DinnerRecord) Validate() error {
	if !r.Price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

// Attends reports whether p is among the record's attendees.
func (r DinnerRecord) Attends(p PersonID) bool {
	for _, a := range r.Attendees {
		if a == p {
			return true
		}
	}
	return false
}

// Normalized returns r with duplicate attendees dropped, first occurrence
// kept. The attendee slice is always fresh.
func (r DinnerRecord) Normalized() DinnerRecord {
	seen := make(map[PersonID]bool, len(r.Attendees))
	out := make([]PersonID, 0, len(r.Attendees))
	for _, p := range r.Attendees {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	r.Attendees = out
	return r
}

// Clone returns a copy that shares no backing storage with l.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, rec := range l {
		rec.Attendees = append([]PersonID(nil), rec.Attendees...)
		out[k] = rec
	}
	return out
}

func (l Ledger) Has(key DateKey) bool {
	_, ok := l[key]
	return ok
}

// Keys returns the recorded dates in ascending order.
func (l Ledger) Keys() []DateKey {
	keys := make([]DateKey, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ApplySnapshot is the ledger reducer: a snapshot from the store always
// replaces whatever was held before.
func ApplySnapshot(_ Ledger, snapshot Ledger) Ledger {
	if snapshot == nil {
		return Ledger{}
	}
	return snapshot
}

// Validate rejects rosters the ledger cannot be rendered with.
func (r Roster) Validate() error {
	var problems []string
	if len(r.People) == 0 {
		return ErrEmptyRoster
	}
	if len(r.Presets) == 0 {
		return ErrNoPresets
	}
	seen := map[PersonID]bool{}
	for _, p := range r.People {
		if strings.TrimSpace(string(p)) == "" {
			problems = append(problems, "blank housemate name")
			continue
		}
		if seen[p] {
			problems = append(problems, fmt.Sprintf("duplicate housemate %q", p))
		}
		seen[p] = true
	}
	for i, price := range r.Presets {
		if !price.IsPositive() {
			problems = append(problems, fmt.Sprintf("preset %d is not positive: %s", i, price))
		}
		for j := 0; j < i; j++ {
			if r.Presets[j].Equal(price) {
				problems = append(problems, fmt.Sprintf("duplicate preset %s", price))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid roster: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Knows reports whether p is on the roster.
func (r Roster) Knows(p PersonID) bool {
	for _, q := range r.People {
		if q == p {
			return true
		}
	}
	return false
}

// PresetIndex returns the index of the preset equal to price, or -1.
func (r Roster) PresetIndex(price decimal.Decimal) int {
	for i, p := range r.Presets {
		if p.Equal(price) {
			return i
		}
	}
	return -1
}

// Order returns people sorted for display: roster order first, then anyone
// unknown to the roster in lexical order. Duplicates are dropped.
func (r Roster) Order(people []PersonID) []PersonID {
	in := make(map[PersonID]bool, len(people))
	for _, p := range people {
		in[p] = true
	}
	out := make([]PersonID, 0, len(in))
	for _, p := range r.People {
		if in[p] {
			out = append(out, p)
			delete(in, p)
		}
	}
	extra := make([]PersonID, 0, len(in))
	for p := range in {
		extra = append(extra, p)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
