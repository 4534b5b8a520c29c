package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Change operations carried by EntityChangeMessage.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpDeleteMany = "delete_many"
)

// EntityChangeMessage announces a committed change to one entity, or to a
// whole collection when ID is empty (OpDeleteMany). Consumers re-read the
// store; the message carries no record state.
type EntityChangeMessage struct {
	Kind      string    `json:"kind"`
	Index     string    `json:"index,omitempty"`
	ID        string    `json:"id,omitempty"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntityChangeMessage creates a change message stamped with the current time.
func NewEntityChangeMessage(kind, index, id, op string) *EntityChangeMessage {
	return &EntityChangeMessage{
		Kind:      kind,
		Index:     index,
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks that the message names a kind and a known operation.
func (m *EntityChangeMessage) Validate() error {
	if m.Kind == "" {
		return errors.New("missing kind")
	}
	switch m.Op {
	case OpCreate, OpUpdate, OpDelete:
		if m.ID == "" {
			return errors.New("missing id")
		}
	case OpDeleteMany:
	default:
		return errors.New("unknown op " + m.Op)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *EntityChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntityChangeMessageFromJSON parses and validates a message body.
func EntityChangeMessageFromJSON(data []byte) (*EntityChangeMessage, error) {
	var msg EntityChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
