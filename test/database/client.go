package database

import (
	"testing"

	"github.com/codeready-toolchain/equityresearch/pkg/database"
	"github.com/codeready-toolchain/equityresearch/test/util"
)

// NewTestClient creates a migrated test database client on its own schema.
// Cleanup is handled by util.SetupTestDatabase.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	return database.NewClientFromDB(util.SetupTestDatabase(t))
}
