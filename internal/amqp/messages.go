package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"designledger/internal/core"
)

const (
	KindMoved    = "moved"
	KindReturned = "returned"
)

// ItemMovedMessage announces a change of an item's transaction association.
// ToTransactionID is empty when the item went back to business inventory.
type ItemMovedMessage struct {
	EventID           string    `json:"event_id"`
	Kind              string    `json:"kind"`
	ItemID            string    `json:"item_id"`
	Description       string    `json:"description,omitempty"`
	FromTransactionID string    `json:"from_transaction_id,omitempty"`
	ToTransactionID   string    `json:"to_transaction_id,omitempty"`
	ToProjectID       string    `json:"to_project_id,omitempty"`
	MovedAt           time.Time `json:"moved_at"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewItemMovedMessage builds the event for m. description is informational.
func NewItemMovedMessage(m core.Movement, description string) *ItemMovedMessage {
	kind := KindMoved
	if m.ToTransactionID == nil {
		kind = KindReturned
	}
	return &ItemMovedMessage{
		EventID:           core.NewID(),
		Kind:              kind,
		ItemID:            m.ItemID,
		Description:       description,
		FromTransactionID: m.FromTransactionID,
		ToTransactionID:   core.Deref(m.ToTransactionID),
		ToProjectID:       core.Deref(m.ToProjectID),
		MovedAt:           m.At,
		Timestamp:         time.Now(),
	}
}

func (m *ItemMovedMessage) Validate() error {
	if m.ItemID == "" {
		return errors.New("missing item_id")
	}
	switch m.Kind {
	case KindMoved:
		if m.ToTransactionID == "" {
			return errors.New("moved event without to_transaction_id")
		}
	case KindReturned:
	default:
		return errors.New("unknown kind " + m.Kind)
	}
	return nil
}

func (m *ItemMovedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ItemMovedMessageFromJSON decodes and validates a message body.
func ItemMovedMessageFromJSON(data []byte) (*ItemMovedMessage, error) {
	var msg ItemMovedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
