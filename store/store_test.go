package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/syncwise/crmsync/common"
)

const testOwner = "8675309"

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "crmsync-test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestOpenAndInitSchema(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	require.NotNil(t, db.RawDB())

	// schema creation is idempotent
	require.NoError(t, db.InitSchema())
}

func TestGenStorePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p1, err := GenStorePath(testOwner, dir, "crmsync")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(p1), "crmsync-"))
	require.True(t, strings.HasSuffix(p1, ".db"))

	// stable for the same owner, distinct across owners
	p2, err := GenStorePath(testOwner, dir, "crmsync")
	require.NoError(t, err)
	require.Equal(t, p1, p2)

	p3, err := GenStorePath("1234567", dir, "crmsync")
	require.NoError(t, err)
	require.NotEqual(t, p1, p3)

	_, err = GenStorePath("", dir, "crmsync")
	require.Error(t, err)

	_, err = GenStorePath(testOwner, dir, "")
	require.Error(t, err)
}

func TestDefaultStorePathEnvOverride(t *testing.T) {
	t.Setenv(common.EnvDatabase, "/tmp/crmsync-override.db")

	p, err := DefaultStorePath(testOwner)
	require.NoError(t, err)
	require.Equal(t, "/tmp/crmsync-override.db", p)
}

func TestTimeNullStringRoundTrip(t *testing.T) {
	t.Parallel()

	require.False(t, timeToNullString(nil, time.RFC3339).Valid)

	var zero time.Time

	require.False(t, timeToNullString(&zero, time.RFC3339).Valid)

	now := time.Date(2024, 3, 15, 14, 32, 7, 0, time.UTC)
	ns := timeToNullString(&now, time.RFC3339)
	require.True(t, ns.Valid)

	back := nullStringToTime(ns, time.RFC3339)
	require.NotNil(t, back)
	require.True(t, now.Equal(*back))
}
