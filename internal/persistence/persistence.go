// Package persistence selects the document store backing the export ledger.
package persistence

import (
	"context"
	"fmt"

	"chebi2gene/internal/config"
	"chebi2gene/internal/infra/persistence/memory"
	"chebi2gene/internal/infra/persistence/postgres"
	"chebi2gene/internal/infra/persistence/sqlite"
	"chebi2gene/internal/persistence/core"
)

type (
	Driver   = core.Driver
	Document = core.Document
	Store    = core.Store
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

var ErrNotFound = core.ErrNotFound

// Open constructs the store named by cfg.Driver (default sqlite).
func Open(ctx context.Context, cfg config.LedgerConfig) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}
