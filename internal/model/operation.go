package model

import (
	"encoding/json"
	"strings"
)

type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

func (t OperationType) String() string { return string(t) }

func (t OperationType) Valid() bool {
	return t == OpCreate || t == OpUpdate || t == OpDelete
}

// ParseOperationType normalizes input. Returns (value, true) if valid.
func ParseOperationType(s string) (OperationType, bool) {
	t := OperationType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Collection is the logical table a write targets.
type Collection string

const (
	CollectionTransactions Collection = "transactions"
	CollectionAccounts     Collection = "accounts"
	CollectionBudgets      Collection = "budgets"
	CollectionDebts        Collection = "debts"
)

func (c Collection) String() string { return string(c) }

func (c Collection) Valid() bool {
	switch c {
	case CollectionTransactions, CollectionAccounts, CollectionBudgets, CollectionDebts:
		return true
	default:
		return false
	}
}

func ParseCollection(s string) (Collection, bool) {
	c := Collection(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

// OperationMeta is what a caller supplies for a write; identity, timestamp and
// retry fields are assigned by the queuing layer.
type OperationMeta struct {
	Type       OperationType   `json:"type"`
	Collection Collection      `json:"collection"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (m OperationMeta) Valid() bool {
	return m.Type.Valid() && m.Collection.Valid()
}

// QueuedOperation is a pending mutation awaiting remote application.
type QueuedOperation struct {
	ID         string          `json:"id"`
	Type       OperationType   `json:"type"`
	Collection Collection      `json:"collection"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"` // epoch millis
	RetryCount int             `json:"retryCount"`
	LastError  *string         `json:"lastError,omitempty"`
}

func (o QueuedOperation) Meta() OperationMeta {
	return OperationMeta{Type: o.Type, Collection: o.Collection, Data: o.Data}
}

// RecordID extracts the "id" field of the payload, used by update/delete to
// address the remote record. Empty when the payload carries none.
func (o QueuedOperation) RecordID() string {
	if len(o.Data) == 0 {
		return ""
	}
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(o.Data, &probe); err != nil || len(probe.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(probe.ID, &s); err == nil {
		return s
	}
	// numeric ids are kept verbatim
	return strings.TrimSpace(string(probe.ID))
}
