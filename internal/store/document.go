package store

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"dinners/internal/core"
)

// Document is the wire form of one dinner: {"attendees": [...], "price": 7}.
// Price is kept as a JSON number rather than decimal's default quoted form.
type Document struct {
	Attendees []string    `json:"attendees"`
	Price     json.Number `json:"price"`
}

// ToDocument converts a record to its wire form.
func ToDocument(rec core.DinnerRecord) Document {
	attendees := make([]string, 0, len(rec.Attendees))
	for _, p := range rec.Attendees {
		attendees = append(attendees, string(p))
	}
	return Document{Attendees: attendees, Price: json.Number(rec.Price.String())}
}

// Record converts the wire form back, rejecting non-positive prices and
// dropping repeated attendees.
func (d Document) Record() (core.DinnerRecord, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return core.DinnerRecord{}, fmt.Errorf("%w: %q", core.ErrInvalidPrice, d.Price.String())
	}
	rec := core.DinnerRecord{Price: price}
	for _, a := range d.Attendees {
		rec.Attendees = append(rec.Attendees, core.PersonID(a))
	}
	if err := rec.Validate(); err != nil {
		return core.DinnerRecord{}, err
	}
	return rec.Normalized(), nil
}

// EncodeDocument marshals a record.
func EncodeDocument(rec core.DinnerRecord) ([]byte, error) {
	return json.Marshal(ToDocument(rec))
}

// DecodeDocument unmarshals a record.
func DecodeDocument(data []byte) (core.DinnerRecord, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return core.DinnerRecord{}, fmt.Errorf("decode dinner document: %w", err)
	}
	return d.Record()
}

// Unavailable tags err as a store failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}
