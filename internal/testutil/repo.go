// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"testing"

	"github.com/ruteo-noc/ruteo/internal/state"
)

// NewTempRepo creates a migrated topology.db in a temp dir and returns its repo.
// The database is removed with the test's temp dir; the handle is closed in cleanup.
func NewTempRepo(t *testing.T) *state.TopologyRepo {
	t.Helper()
	repo, closer, err := state.Bootstrap(t.TempDir())
	if err != nil {
		t.Fatalf("bootstrap temp repo: %v", err)
	}
	t.Cleanup(func() { closer.Close() })
	return repo
}
