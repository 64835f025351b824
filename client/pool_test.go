package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dispatchd/dispatchd/mdp"
	"github.com/stretchr/testify/require"
)

func TestNewPoolBadEndpointFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping socket-backed test in short mode")
	}

	cfg := DefaultConfig("not-a-real-transport://nope")
	cfg.HardTimeout = 50 * time.Millisecond
	cfg.PoolSize = 3

	_, err := NewPool(cfg)
	if err == nil {
		t.Fatal("expected pool construction to fail when no fabric can connect")
	}
}

func TestNewPoolInproc(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping socket-backed test in short mode")
	}

	cfg := DefaultConfig("inproc://test-pool-frontend")
	cfg.PoolSize = 2
	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("expected pool of fabrics dialing an inproc endpoint to connect: %v", err)
	}
	defer pool.Close()

	if len(pool.fabrics) != 2 {
		t.Fatalf("expected 2 fabrics buffered in the pool, got %d", len(pool.fabrics))
	}
}

// TestPoolConcurrentCallersShareFixedFabricCount is spec §8 scenario 6:
// with pool_size=4, 16 parallel callers of a job all succeed, and the
// pool still holds exactly 4 fabrics once every call has returned.
func TestPoolConcurrentCallersShareFixedFabricCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	frontend := "inproc://pool-scenario6-frontend"
	registration := "inproc://pool-scenario6-registration"

	cfg := mdp.DefaultConfig()
	cfg.Frontend = frontend
	cfg.RegistrationEndpoint = registration
	cfg.AcquisitionTimeout = 3 * time.Second

	broker, err := mdp.NewBroker(cfg)
	require.NoError(t, err)
	broker.Start()
	defer broker.Stop()

	worker := mdp.NewWorker(registration, map[string]mdp.TargetFunc{
		"quick": func(args [][]byte) ([]byte, error) {
			time.Sleep(50 * time.Millisecond)
			return []byte("done"), nil
		},
	})
	go func() {
		_ = worker.Run()
	}()
	defer worker.Shutdown()
	time.Sleep(100 * time.Millisecond)

	poolCfg := DefaultConfig(frontend)
	poolCfg.PoolSize = 4
	poolCfg.SoftTimeout = 2 * time.Second
	poolCfg.HardTimeout = 3 * time.Second

	pool, err := NewPool(poolCfg)
	require.NoError(t, err)
	defer pool.Close()

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := pool.Execute(context.Background(), mdp.NewJob("quick"))
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "caller %d failed", i)
	}
	require.Equal(t, 4, len(pool.fabrics), "pool should still hold exactly 4 fabrics")
}

func TestNewPoolRejectsNonPositiveSize(t *testing.T) {
	cfg := DefaultConfig("inproc://test-pool-frontend-zero")
	cfg.PoolSize = 0

	_, err := NewPool(cfg)
	if err == nil {
		t.Fatal("expected pool construction to reject a zero PoolSize")
	}
}
