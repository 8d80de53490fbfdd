package state

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// dbCloser holds the DB handle for cleanup. Implements io.Closer.
type dbCloser struct {
	db *sql.DB
}

func (c *dbCloser) Close() error {
	return c.db.Close()
}

// Bootstrap opens (or creates) topology.db under dataDir, applies migrations,
// and returns a ready-to-use TopologyRepo plus an io.Closer for the handle.
func Bootstrap(dataDir string) (*TopologyRepo, io.Closer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	db, err := OpenDB(filepath.Join(dataDir, "topology.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open topology.db: %w", err)
	}

	if err := MigrateTopologyDB(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate topology.db: %w", err)
	}

	return NewTopologyRepo(db), &dbCloser{db: db}, nil
}
