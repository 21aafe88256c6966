package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/migrations"
)

func TestPendingOrderSortsSQLFiles(t *testing.T) {
	files := fstest.MapFS{
		"0002_b.sql": {Data: []byte("SELECT 2")},
		"README.md":  {Data: []byte("docs")},
		"0001_a.sql": {Data: []byte("SELECT 1")},
	}
	names, err := PendingOrder(files)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_a.sql", "0002_b.sql"}, names)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	names, err := PendingOrder(migrations.Files)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_core.sql", "0002_ledger.sql", "0003_storefront.sql"}, names)
}
