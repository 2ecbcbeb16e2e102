package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Iron-Ham/mplp/internal/configmgr"
)

func startPostgres(t *testing.T) *ConfigStore {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mplp"),
		postgres.WithUsername("mplp"),
		postgres.WithPassword("mplp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestConfigStore(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("append and load", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, configmgr.Record{Key: "b.timeout", Version: 1, Value: 30, Timestamp: now}))
		require.NoError(t, store.Append(ctx, configmgr.Record{Key: "a.name", Version: 1, Value: "alpha", Timestamp: now}))
		require.NoError(t, store.Append(ctx, configmgr.Record{Key: "b.timeout", Version: 2, Deleted: true, Timestamp: now}))

		recs, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "a.name", recs[0].Key)
		assert.Equal(t, "alpha", recs[0].Value)
		assert.Equal(t, float64(30), recs[1].Value)
		assert.True(t, recs[2].Deleted)
		assert.Nil(t, recs[2].Value)
		assert.True(t, recs[0].Timestamp.Equal(now))
	})

	t.Run("duplicate version rejected", func(t *testing.T) {
		err := store.Append(ctx, configmgr.Record{Key: "a.name", Version: 1, Value: "again", Timestamp: now})
		assert.Error(t, err)
	})

	t.Run("restore into manager", func(t *testing.T) {
		mgr, err := configmgr.New(configmgr.WithPersister(store))
		require.NoError(t, err)
		require.NoError(t, mgr.Restore(ctx))

		v, ok := mgr.Get("a.name")
		require.True(t, ok)
		assert.Equal(t, "alpha", v)
		_, ok = mgr.Get("b.timeout")
		assert.False(t, ok)

		_, err = mgr.Set("a.name", "beta", false)
		require.NoError(t, err)
		assert.Equal(t, 2, mgr.Version("a.name"))
	})

	t.Run("prune", func(t *testing.T) {
		for v := 3; v <= 5; v++ {
			require.NoError(t, store.Append(ctx, configmgr.Record{Key: "a.name", Version: v, Value: v, Timestamp: now}))
		}
		n, err := store.Prune(ctx, "a.name", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}
