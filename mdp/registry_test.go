package mdp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Add("w1")
	r.Add("w1")

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, r.IdleCount())
}

func TestRegistryCheckoutRelease(t *testing.T) {
	r := NewRegistry()
	r.Add("w1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	handle, err := r.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "w1", handle.Identity)
	assert.Equal(t, 0, r.IdleCount())

	r.Release(handle, OutcomeOK)
	assert.Equal(t, 1, r.IdleCount())
}

func TestRegistryCheckoutTimeout(t *testing.T) {
	r := NewRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Checkout(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoWorker)
}

func TestRegistryCheckoutBlocksUntilAdd(t *testing.T) {
	r := NewRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan *WorkerHandle, 1)
	go func() {
		h, err := r.Checkout(ctx)
		require.NoError(t, err)
		done <- h
	}()

	time.Sleep(20 * time.Millisecond)
	r.Add("late-worker")

	select {
	case h := <-done:
		assert.Equal(t, "late-worker", h.Identity)
	case <-time.After(time.Second):
		t.Fatal("checkout never unblocked after worker was added")
	}
}

func TestRegistryReleaseEvict(t *testing.T) {
	r := NewRegistry()
	r.Add("w1")

	ctx := context.Background()
	handle, err := r.Checkout(ctx)
	require.NoError(t, err)

	r.Release(handle, OutcomeEvict)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Add("w1")

	handle, err := r.Checkout(context.Background())
	require.NoError(t, err)

	r.Release(handle, OutcomeOK)
	r.Release(handle, OutcomeOK) // must not double-add to idle list

	assert.Equal(t, 1, r.IdleCount())
}

func TestRegistryDeleteWhileCheckedOut(t *testing.T) {
	r := NewRegistry()
	r.Add("w1")

	handle, err := r.Checkout(context.Background())
	require.NoError(t, err)

	r.Delete("w1")
	assert.Equal(t, 0, r.Len())

	// Releasing a handle whose worker was independently deleted is a
	// safe no-op.
	r.Release(handle, OutcomeOK)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryPurgeExpired(t *testing.T) {
	r := NewRegistry()
	r.Add("stale")
	r.workers["stale"].lastSeen = time.Now().Add(-time.Hour)
	r.Add("fresh")

	r.PurgeExpired(time.Minute)

	assert.Equal(t, 1, r.Len())
	_, ok := r.workers["fresh"]
	assert.True(t, ok)
}

func TestRegistryConcurrentCheckout(t *testing.T) {
	r := NewRegistry()
	const n = 10
	for i := 0; i < n; i++ {
		r.Add(string(rune('a' + i)))
	}

	var wg sync.WaitGroup
	seen := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			h, err := r.Checkout(ctx)
			if err == nil {
				seen <- h.Identity
				r.Release(h, OutcomeOK)
			}
		}()
	}
	wg.Wait()
	close(seen)

	identities := map[string]bool{}
	for id := range seen {
		identities[id] = true
	}
	assert.Len(t, identities, n, "every worker should be handed out exactly once across the race")
}
