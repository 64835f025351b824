package client

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dispatchd/dispatchd/mdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFabricTestBroker brings up a broker bound to frontend/registration
// (inproc transport) with a single worker serving "slow" via target, and
// returns the broker for the caller to Stop. The broker's own SoftTimeout
// (how long it waits on the worker before evicting it) is kept generous
// so the fabric's own two-tier timeout, not the broker's, is what these
// tests exercise.
func startFabricTestBroker(t *testing.T, frontend, registration string, target mdp.TargetFunc) *mdp.Broker {
	t.Helper()

	cfg := mdp.DefaultConfig()
	cfg.Frontend = frontend
	cfg.RegistrationEndpoint = registration
	cfg.SoftTimeout = 5 * time.Second
	cfg.AcquisitionTimeout = 3 * time.Second

	broker, err := mdp.NewBroker(cfg)
	require.NoError(t, err)
	broker.Start()

	worker := mdp.NewWorker(registration, map[string]mdp.TargetFunc{"slow": target})
	go func() {
		_ = worker.Run()
	}()
	t.Cleanup(worker.Shutdown)

	time.Sleep(100 * time.Millisecond)
	return broker
}

func TestFabricOverflowAccounting(t *testing.T) {
	f := &Fabric{cfg: Config{OverflowBudget: 1}, overflow: make(map[string]int)}

	assert.Equal(t, 1, f.bumpOverflow("w1"))
	assert.Equal(t, 2, f.bumpOverflow("w1"))

	f.resetOverflow("w1")
	assert.Equal(t, 1, f.bumpOverflow("w1"))
}

func TestFabricOverflowIsPerWorker(t *testing.T) {
	f := &Fabric{cfg: Config{OverflowBudget: 1}, overflow: make(map[string]int)}

	assert.Equal(t, 1, f.bumpOverflow("w1"))
	assert.Equal(t, 1, f.bumpOverflow("w2"))
	assert.Equal(t, 2, f.bumpOverflow("w1"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("ipc:///tmp/test.ipc")
	assert.Equal(t, "ipc:///tmp/test.ipc", cfg.Frontend)
	assert.Greater(t, cfg.HardTimeout, cfg.SoftTimeout)
	assert.Equal(t, 1, cfg.OverflowBudget)
}

func TestNewFabricBadEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping socket-backed test in short mode")
	}

	cfg := DefaultConfig("not-a-real-transport://nope")
	cfg.HardTimeout = 50 * time.Millisecond

	_, err := NewFabric(cfg)
	require.Error(t, err)
}

// TestFabricSlowWorkerOneOverflowTolerated is spec §8 scenario 2: a
// worker that always takes longer than SoftTimeout but stays inside
// HardTimeout is tolerated once per OverflowBudget, then fails the next
// call with the same worker.
func TestFabricSlowWorkerOneOverflowTolerated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	broker := startFabricTestBroker(t, "inproc://fabric-scenario2-frontend", "inproc://fabric-scenario2-registration",
		func(args [][]byte) ([]byte, error) {
			time.Sleep(1200 * time.Millisecond)
			return []byte("ok"), nil
		})
	defer broker.Stop()

	cfg := DefaultConfig("inproc://fabric-scenario2-frontend")
	cfg.SoftTimeout = 1 * time.Second
	cfg.HardTimeout = 1500 * time.Millisecond
	cfg.OverflowBudget = 1

	fabric, err := NewFabric(cfg)
	require.NoError(t, err)
	defer fabric.Close()

	job := mdp.NewJob("slow")

	result, err := fabric.Execute(job)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(result))

	_, err = fabric.Execute(job)
	require.Error(t, err)
	assert.ErrorIs(t, err, mdp.ErrTimeout)
}

// TestFabricRecoveredWorkerResetsOverflow is spec §8 scenario 3: a worker
// that overflows once and then replies within SoftTimeout resets that
// worker's overflow counter to zero.
func TestFabricRecoveredWorkerResetsOverflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	var calls int32
	broker := startFabricTestBroker(t, "inproc://fabric-scenario3-frontend", "inproc://fabric-scenario3-registration",
		func(args [][]byte) ([]byte, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				time.Sleep(1200 * time.Millisecond)
			} else {
				time.Sleep(200 * time.Millisecond)
			}
			return []byte("ok"), nil
		})
	defer broker.Stop()

	cfg := DefaultConfig("inproc://fabric-scenario3-frontend")
	cfg.SoftTimeout = 1 * time.Second
	cfg.HardTimeout = 1500 * time.Millisecond
	cfg.OverflowBudget = 1

	fabric, err := NewFabric(cfg)
	require.NoError(t, err)
	defer fabric.Close()

	job := mdp.NewJob("slow")

	result, err := fabric.Execute(job)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(result))

	result, err = fabric.Execute(job)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(result))

	fabric.overflowMu.Lock()
	defer fabric.overflowMu.Unlock()
	for worker, count := range fabric.overflow {
		assert.Equalf(t, 0, count, "worker %q overflow should have reset to 0", worker)
	}
}
