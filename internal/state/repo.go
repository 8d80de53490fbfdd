package state

import (
	"database/sql"
	"fmt"
	"sync"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting read helpers serve both plain reads and transactional reads.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// TopologyRepo wraps topology.db. Reads run directly against the WAL
// snapshot; all mutations go through WithTx so that a resolve or ban/lift
// either applies completely or not at all. Writes are serialized by an
// internal mutex (single-writer database).
type TopologyRepo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewTopologyRepo creates a TopologyRepo for the given topology.db connection.
// The database must already be migrated (see MigrateTopologyDB).
func NewTopologyRepo(db *sql.DB) *TopologyRepo {
	return &TopologyRepo{db: db}
}

// Tx exposes the write primitives available inside a WithTx callback.
// Read helpers on Tx observe the transaction's own uncommitted writes.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single transaction. Any error from fn rolls the
// whole transaction back; partial application is never a valid outcome.
func (r *TopologyRepo) WithTx(fn func(*Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
