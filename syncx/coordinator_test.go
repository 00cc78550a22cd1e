package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/ot"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []ChangesCommittedMsg
}

func (f *fakeBroadcaster) Publish(_ context.Context, msg ChangesCommittedMsg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}
func (f *fakeBroadcaster) Subscribe(context.Context, string, string, func(ChangesCommittedMsg)) error {
	return nil
}
func (f *fakeBroadcaster) Unsubscribe(context.Context, string, string) error { return nil }
func (f *fakeBroadcaster) Close() error                                     { return nil }

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestCoordinatorCommitChangesBroadcasts(t *testing.T) {
	ctx := context.Background()
	store := serverstore.NewMemStore()
	bc := &fakeBroadcaster{}
	c := NewCoordinator(store, bc, Config{})

	release := c.Open("doc-1")
	defer release()

	changes := []change.Change{
		{ID: "c1", BaseRev: 0, Ops: []patch.Op{{Kind: patch.Add, Path: patch.ParsePath("/x"), Value: 1.0}}},
	}
	out, err := c.CommitChanges(ctx, "doc-1", changes, "client-a", ot.CommitOptions{Now: func() time.Time { return time.UnixMilli(1000) }})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].Rev)

	require.Eventually(t, func() bool { return bc.count() == 1 }, time.Second, time.Millisecond)
}

func TestCoordinatorSerializesConcurrentCommitsOnSameDoc(t *testing.T) {
	ctx := context.Background()
	store := serverstore.NewMemStore()
	c := NewCoordinator(store, nil, Config{})
	release := c.Open("doc-1")
	defer release()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			changes := []change.Change{
				{ID: string(rune('a' + i)), BaseRev: 0, Ops: []patch.Op{{Kind: patch.Inc, Path: patch.ParsePath("/count"), Value: 1.0}}},
			}
			_, err := c.CommitChanges(ctx, "doc-1", changes, "client", ot.CommitOptions{Now: func() time.Time { return time.UnixMilli(1000) }})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := ot.GetStateAtRevision(ctx, store, store, "doc-1", 10)
	require.NoError(t, err)
	require.Equal(t, 10.0, state.(map[string]any)["count"])
}
