package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karmalens/karmalens/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLWithAuthToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://karmalens.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://karmalens.turso.io?authToken=token123", dsn)
	})

	t.Run("URLKeepsExistingToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://karmalens.turso.io?authToken=abc",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://karmalens.turso.io?authToken=abc", dsn)
	})

	t.Run("PlainPathGetsFilePrefix", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "karmalens.db")

		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: path})
		require.NoError(t, err)
		require.Equal(t, "file:"+path, dsn)
		require.DirExists(t, filepath.Dir(path))
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestNilStoreGuards(t *testing.T) {
	var s *Store
	ctx := context.Background()

	require.NoError(t, s.Close())
	require.Error(t, s.Migrate(ctx))
	require.Error(t, s.Ping(ctx))

	_, err := s.ListTrackedUsers(ctx)
	require.ErrorContains(t, err, "database store is not initialized")

	_, err = s.LatestSnapshot(ctx, "alice")
	require.Error(t, err)

	require.Error(t, s.RecordRun(ctx, nil))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}
