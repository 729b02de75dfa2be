// Package core defines the document store contract implemented under
// internal/infra/persistence.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Document is one JSON payload stored under an id.
type Document struct {
	ID        string
	Payload   []byte
	UpdatedAt time.Time
}

// Store keeps JSON documents keyed by id. Upsert replaces the payload of an
// existing id. List returns documents ordered by id.
type Store interface {
	Upsert(ctx context.Context, id string, payload []byte) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context) ([]Document, error)
	Close() error
	Driver() Driver
}

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("persistence: document not found")
