package mssql

import (
	"fmt"
	"strings"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmap/internal/storage"
)

// TestSchemaStatements verifies table creation is guarded so it can run on
// every start.
func TestSchemaStatements(t *testing.T) {
	t.Parallel()

	require.Len(t, schemaStatements, 2)
	for _, stmt := range schemaStatements {
		assert.True(t, strings.HasPrefix(stmt, "IF OBJECT_ID("), stmt)
	}
	assert.Contains(t, upsertProfileSQL, "WITH (HOLDLOCK)")
	assert.True(t, strings.HasSuffix(upsertProfileSQL, ";"), "MERGE must be terminated")
}

// TestIsUniqueViolation verifies duplicate key error numbers are recognised.
func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", mssql.Error{Number: 2627})))
	assert.True(t, isUniqueViolation(mssql.Error{Number: 2601}))
	assert.False(t, isUniqueViolation(mssql.Error{Number: 547}))
	assert.False(t, isUniqueViolation(fmt.Errorf("boom")))
}

// TestRegistered verifies the backend is selectable by kind.
func TestRegistered(t *testing.T) {
	t.Parallel()
	assert.Contains(t, storage.Kinds(), "mssql")
}
