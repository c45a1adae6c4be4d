package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dinners/internal/core"
	"dinners/internal/store"
)

// LedgerChangedMessage announces that one date of the shared collection was
// written. It carries no record: consumers reload from their own backend.
type LedgerChangedMessage struct {
	ID        uuid.UUID    `json:"id"`
	Origin    string       `json:"origin"`
	DateKey   core.DateKey `json:"date_key"`
	Op        store.Op     `json:"op"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewLedgerChangedMessage(origin string, key core.DateKey, op store.Op) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		ID:        uuid.New(),
		Origin:    origin,
		DateKey:   key,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON parses and validates a message.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	key, err := core.ParseDateKey(string(msg.DateKey))
	if err != nil {
		return nil, err
	}
	msg.DateKey = key
	if msg.Op != store.OpUpsert && msg.Op != store.OpRemove {
		return nil, fmt.Errorf("unknown op %q", msg.Op)
	}
	return &msg, nil
}
