package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dinners/internal/core"
)

// rosterFile is the YAML layout of ROSTER_FILE:
//
//	housemates: [Alice, Bob]
//	prices: [7, 15]
type rosterFile struct {
	Housemates []string `yaml:"housemates"`
	Prices     []string `yaml:"prices"`
}

// LoadRoster builds the roster from HOUSEMATES/PRICE_PRESETS when either is
// set, otherwise from RosterFile. The two sources are never mixed, so setting
// only one variable leaves the other list empty. The result is validated: a
// roster with nobody on it or no prices is an error.
func (c *Config) LoadRoster() (core.Roster, error) {
	var (
		people []string
		prices []string
	)
	switch {
	case c.Housemates != "" || c.PricePresets != "":
		people = splitList(c.Housemates)
		prices = splitList(c.PricePresets)
	default:
		data, err := os.ReadFile(c.RosterFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return core.Roster{}, fmt.Errorf("roster file %s not found and HOUSEMATES/PRICE_PRESETS not set: %w", c.RosterFile, core.ErrEmptyRoster)
			}
			return core.Roster{}, fmt.Errorf("read roster file: %w", err)
		}
		rf, err := parseRosterFile(data)
		if err != nil {
			return core.Roster{}, fmt.Errorf("roster file %s: %w", c.RosterFile, err)
		}
		people, prices = rf.Housemates, rf.Prices
	}
	return buildRoster(people, prices)
}

func parseRosterFile(data []byte) (rosterFile, error) {
	var rf rosterFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return rosterFile{}, fmt.Errorf("parse yaml: %w", err)
	}
	return rf, nil
}

func buildRoster(people, prices []string) (core.Roster, error) {
	var r core.Roster
	for _, p := range people {
		if p = strings.TrimSpace(p); p != "" {
			r.People = append(r.People, core.PersonID(p))
		}
	}
	for _, s := range prices {
		d, err := core.ParsePrice(s)
		if err != nil {
			return core.Roster{}, fmt.Errorf("price preset %q: %w", s, err)
		}
		r.Presets = append(r.Presets, d)
	}
	if err := r.Validate(); err != nil {
		return core.Roster{}, err
	}
	return r, nil
}

// splitList splits a comma separated list. Prices with a decimal comma must
// use a dot in env vars.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// PresetStrings formats presets for display in flags and logs.
func PresetStrings(presets []decimal.Decimal) []string {
	out := make([]string, len(presets))
	for i, p := range presets {
		out[i] = p.String()
	}
	return out
}
