package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// dialOrSkip connects to a Redis instance for integration testing, skipping
// when none is reachable — these tests need a real server, unlike the
// package's in-memory reference (serverstore.MemStore).
func dialOrSkip(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping redisstore test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreAppendAndReadCommitted(t *testing.T) {
	client := dialOrSkip(t)
	ctx := context.Background()
	docID := "redistest-doc-1"
	client.Del(ctx, committedKey(docID))

	s := New(client)
	c := change.Change{
		ID:        "c1",
		Rev:       1,
		CreatedAt: 1000,
		Ops:       []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/x"), Value: 1.0}},
	}
	require.NoError(t, s.AppendCommitted(ctx, docID, []change.Change{c}))

	rev, err := s.CurrentRev(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, int64(1), rev)

	changes, err := s.ChangesSince(ctx, docID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "c1", changes[0].ID)
}

func TestRedisStoreFieldOpsConsolidation(t *testing.T) {
	client := dialOrSkip(t)
	ctx := context.Background()
	docID := "redistest-doc-2"
	client.Del(ctx, fieldOpsKey(docID), fieldSeqKey(docID))

	s := New(client)
	saved, err := s.SaveFieldOps(ctx, docID, []change.TimedOp{
		{Op: patch.Op{Kind: patch.Replace, Path: patch.ParsePath("/title"), Value: "a"}, TS: 10},
	}, nil)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Equal(t, int64(1), saved[0].Rev)

	ops, err := s.ListFieldOps(ctx, docID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, "a", ops[0].Op.Value)
}

func TestRedisStoreVersionRoundTrip(t *testing.T) {
	client := dialOrSkip(t)
	ctx := context.Background()
	docID := "redistest-doc-3"
	client.Del(ctx, versionsKey(docID))

	s := New(client)
	v := change.VersionMetadata{ID: "v1", Origin: change.OriginMain, EndRev: 5}
	require.NoError(t, s.SaveVersion(ctx, docID, v, map[string]any{"n": 1.0}))

	got, state, found, err := s.LatestMainVersionAtOrBefore(ctx, docID, 10)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", got.ID)
	require.Equal(t, 1.0, state.(map[string]any)["n"])
}
