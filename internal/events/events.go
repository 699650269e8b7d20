package events

import (
	"encoding/json"
	"time"
)

// Event types pushed to dashboard subscribers.
const (
	TypePing           = "ping"
	TypePostingCreated = "posting_created"
	TypePostingUpdated = "posting_updated"
	TypePostingApplied = "posting_applied"
	TypeBatchStarted   = "batch_started"
	TypeBatchFinished  = "batch_finished"
	TypeConfigUpdated  = "config_updated"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MakeEvent encodes one envelope. Data that fails to marshal is dropped, not the event.
func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
