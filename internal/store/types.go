package store

import (
	"context"
	"errors"
	"time"
)

// Record is one stored entity: an opaque JSON payload addressed by
// (kind, id). Kinds in use: "turn", "attention_dismissal",
// "attention_snooze", and "signal:<domain>" rows consumed by the
// attention sources.
type Record struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("record not found")

// Store persists assistant state: conversation turns, dismiss/snooze
// records, and the historical signals attention sources read.
type Store interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, kind, id string) (Record, error)
	ModifiedSince(ctx context.Context, kind string, since time.Time) ([]Record, error)
	Close() error
}
