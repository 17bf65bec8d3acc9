package model

import (
	"strings"
	"time"
)

type ReplayOutcome string

const (
	ReplaySucceeded ReplayOutcome = "succeeded"
	ReplayFailed    ReplayOutcome = "failed"
	ReplayExhausted ReplayOutcome = "exhausted"
)

func (o ReplayOutcome) String() string { return string(o) }

func (o ReplayOutcome) Valid() bool {
	return o == ReplaySucceeded || o == ReplayFailed || o == ReplayExhausted
}

func ParseReplayOutcome(s string) (ReplayOutcome, bool) {
	o := ReplayOutcome(strings.ToLower(strings.TrimSpace(s)))
	return o, o.Valid()
}

// ReplayAttempt is one audit row written per replayed operation.
type ReplayAttempt struct {
	OperationID string        `db:"operation_id" json:"operation_id"`
	Collection  Collection    `db:"collection"   json:"collection"`
	Type        OperationType `db:"type"         json:"type"`
	Outcome     ReplayOutcome `db:"outcome"      json:"outcome"`
	Attempt     int           `db:"attempt"      json:"attempt"`
	Error       string        `db:"error"        json:"error,omitempty"`
	CreatedAt   time.Time     `db:"created_at"   json:"created_at"`
}
