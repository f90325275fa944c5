package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventAction names the write that produced a TransactionEvent.
type EventAction string

const (
	ActionCreated EventAction = "created"
	ActionUpdated EventAction = "updated"
	ActionDeleted EventAction = "deleted"
)

// TransactionEvent is a lightweight change notification. It carries only
// the record ID; consumers fetch the current record from the store.
type TransactionEvent struct {
	ID        string      `json:"id"`
	Action    EventAction `json:"action"`
	Owner     string      `json:"owner,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewTransactionEvent(id string, action EventAction, owner string) TransactionEvent {
	return TransactionEvent{
		ID:        id,
		Action:    action,
		Owner:     owner,
		Timestamp: time.Now().UTC(),
	}
}

func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, err
	}
	if e.ID == "" {
		return TransactionEvent{}, fmt.Errorf("event without id")
	}
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return TransactionEvent{}, fmt.Errorf("unknown event action %q", e.Action)
	}
	return e, nil
}
