package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	assert.Equal(t, 1, ms[0].version)
	assert.Equal(t, "initial_schema", ms[0].name)
	for i := 1; i < len(ms); i++ {
		assert.Greater(t, ms[i].version, ms[i-1].version, "versions must ascend")
	}
}

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (id TEXT);

-- trailing comment
CREATE INDEX idx_a ON a(id);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id TEXT)", stmts[0])
	assert.Equal(t, "CREATE INDEX idx_a ON a(id)", stmts[1])
}

func TestSplitStatementsEmptyAndComments(t *testing.T) {
	assert.Empty(t, splitStatements(""))
	assert.Empty(t, splitStatements("-- only a comment\n-- another\n"))
}
