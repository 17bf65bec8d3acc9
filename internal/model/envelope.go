package model

import "encoding/json"

// Envelope is the payload sent to a remote backend when an operation is applied.
type Envelope struct {
	ID         string          `json:"id"`        // operation ULID
	RecordID   string          `json:"record_id"` // payload "id", if any
	Type       OperationType   `json:"type"`
	Collection Collection      `json:"collection"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

func NewEnvelope(op QueuedOperation) Envelope {
	return Envelope{
		ID:         op.ID,
		RecordID:   op.RecordID(),
		Type:       op.Type,
		Collection: op.Collection,
		Data:       op.Data,
		Timestamp:  op.Timestamp,
	}
}
