// Package postgres persists documents to PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"chebi2gene/internal/persistence/core"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/chebi2gene?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a core.Store over one "documents" table with a JSONB payload.
type Store struct {
	db *sql.DB
}

// NewStore opens a store using dsn (falls back to defaultDSN), pings the
// server and ensures the table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverPostgres }

func (s *Store) Upsert(ctx context.Context, id string, payload []byte) error {
	if id == "" {
		return fmt.Errorf("document id required")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(id,payload,updated_at) VALUES($1,$2,now())
		 ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		id, string(payload)); err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Document, error) {
	var doc core.Document
	err := s.db.QueryRowContext(ctx, `SELECT id, payload, updated_at FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Payload, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("select %s: %w", id, err)
	}
	return doc, nil
}

func (s *Store) List(ctx context.Context) ([]core.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload, updated_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Document
	for rows.Next() {
		var doc core.Document
		if err := rows.Scan(&doc.ID, &doc.Payload, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
