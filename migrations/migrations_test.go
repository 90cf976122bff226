package migrations

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceWalksVersionsInOrder(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	v, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	v, err = src.Next(v)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	_, err = src.Next(v)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEveryUpHasADown(t *testing.T) {
	entries, err := fs.ReadDir(FS(), "sql")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			assert.True(t, names[strings.TrimSuffix(name, ".up.sql")+".down.sql"], "missing down for %s", name)
		}
	}
}

func TestTicketsTableEnforcesLifecycle(t *testing.T) {
	data, err := fs.ReadFile(FS(), "sql/000002_create_tickets.up.sql")
	require.NoError(t, err)
	ddl := string(data)
	assert.Contains(t, ddl, "PRIMARY KEY (pool_id, sequence)")
	assert.Contains(t, ddl, "CHECK (NOT reward_claimed OR used)")
}
