package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

const testInitialNode = "initial"

func newMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(testInitialNode, 15*time.Minute, logging.Default())
	t.Cleanup(store.Stop)
	return store
}

func textKey(user string) Key {
	return Key{UserID: user, Channel: ChannelText}
}

func TestMemoryGetOrCreate(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, testInitialNode, s.CurrentNode)
	assert.Equal(t, int64(1), s.Version)
	assert.NotEmpty(t, s.ID)

	again, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID, "second call returns the live session")

	// Same user on another channel is a distinct session.
	voice, err := store.GetOrCreate(ctx, Key{UserID: "u1", Channel: ChannelVoice})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, voice.ID)
}

func TestMemoryConcurrentGetOrCreateSingleWinner(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	const callers = 24
	var wg sync.WaitGroup
	ids := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := store.GetOrCreate(ctx, textKey("racer"))
			require.NoError(t, err)
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "every caller sees the same session")
	}
}

func TestMemorySaveBumpsVersion(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)

	s.CurrentNode = "services_info"
	s.Context["patient_name"] = "Jane Doe"
	require.NoError(t, store.Save(ctx, s))
	assert.Equal(t, int64(2), s.Version)

	got, err := store.Get(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "services_info", got.CurrentNode)
	assert.Equal(t, "Jane Doe", got.Context["patient_name"])
}

func TestMemoryStaleSaveRejected(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)

	a, err := store.Get(ctx, textKey("u1"))
	require.NoError(t, err)
	b, err := store.Get(ctx, textKey("u1"))
	require.NoError(t, err)

	a.CurrentNode = "services_info"
	require.NoError(t, store.Save(ctx, a))

	b.CurrentNode = "goodbye"
	assert.ErrorIs(t, store.Save(ctx, b), ErrStaleSession)

	got, err := store.Get(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "services_info", got.CurrentNode, "stale write must not land")
}

func TestMemoryLazyExpiry(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	s, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)

	// Just under the timeout: still alive.
	now = now.Add(14 * time.Minute)
	_, err = store.Get(ctx, textKey("u1"))
	require.NoError(t, err)

	// Get refreshes nothing; past the timeout the session is gone.
	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, textKey("u1"))
	assert.ErrorIs(t, err, ErrNotFound)

	// A new GetOrCreate starts over at the initial node.
	fresh, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, fresh.ID)
	assert.Equal(t, testInitialNode, fresh.CurrentNode)
}

func TestMemoryTouchKeepsAlive(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	require.NoError(t, store.Touch(ctx, textKey("u1")))

	now = now.Add(10 * time.Minute)
	_, err = store.Get(ctx, textKey("u1"))
	assert.NoError(t, err, "touched session survives past the original deadline")
}

func TestMemorySweeperEvictsIdle(t *testing.T) {
	store := NewMemoryStore(testInitialNode, 15*time.Minute, logging.Default())
	t.Cleanup(store.Stop)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	store.sweep()

	store.mu.Lock()
	_, alive := store.sessions[textKey("u1")]
	store.mu.Unlock()
	assert.False(t, alive, "sweeper removes idle sessions outright")
}

func TestMemoryExpireAndReset(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)
	s.CurrentNode = "goodbye"
	s.Context["patient_name"] = "Jane Doe"
	require.NoError(t, store.Save(ctx, s))

	reset, err := store.Reset(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, testInitialNode, reset.CurrentNode)
	assert.Empty(t, reset.Context)
	assert.Equal(t, s.ID, reset.ID, "reset keeps the session alive")

	require.NoError(t, store.Expire(ctx, textKey("u1")))
	_, err = store.Get(ctx, textKey("u1"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Expiring an absent key is not an error.
	assert.NoError(t, store.Expire(ctx, textKey("u1")))
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, textKey("u1"))
	require.NoError(t, err)
	s.Context["patient_name"] = "mutated locally"

	got, err := store.Get(ctx, textKey("u1"))
	require.NoError(t, err)
	assert.Empty(t, got.Context["patient_name"], "returned sessions are copies")
}
