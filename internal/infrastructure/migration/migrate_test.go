package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	names, err := List()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "000001_local_store", names[0])
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "sql")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups[strings.TrimSuffix(e.Name(), ".up.sql")] = true
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs[strings.TrimSuffix(e.Name(), ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversLocalTables(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "sql/000001_local_store.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	for _, table := range []string{"orders", "order_items", "zones", "floor_tables", "snapshots", "sync_queue", "sync_dead_letters", "sync_applied_keys"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, schema, "seq          BIGSERIAL PRIMARY KEY")
	assert.Contains(t, schema, "version_token")
}
