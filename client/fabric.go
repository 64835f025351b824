// Package client implements the call fabric (C5) and pool (C6) that let
// application code call into a dispatch broker: a single-owner DEALER
// socket wrapped in a mutex-serialized request/reply cycle with a
// two-tier timeout and per-worker overflow policy.
package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/mdp"
	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Config tunes a Fabric's timeout and overflow behavior.
type Config struct {
	// Frontend is the broker endpoint to dial.
	Frontend string
	// SoftTimeout is the nominal time a job is allowed to take.
	SoftTimeout time.Duration
	// HardTimeout is the absolute ceiling on a call, measured from the
	// send: with no reply by then Execute fails with ErrTimeout,
	// regardless of overflow budget.
	HardTimeout time.Duration
	// OverflowBudget is how many consecutive SoftTimeout-exceeding (but
	// HardTimeout-respecting) replies from the same worker are
	// tolerated before that worker's slow replies start failing too.
	OverflowBudget int
	// PoolSize is how many fabrics a Pool built from this Config holds.
	// Unused by a bare Fabric; NewPool reads it.
	PoolSize int
	// IOThreads mirrors the original's zmq.Context(io_threads=N) knob.
	// goczmq's Sock API exposes no equivalent global setting (only
	// per-socket options like SockSetRcvhwm), so this is accepted for
	// config-surface compatibility but not forwarded to the transport.
	IOThreads int
}

// DefaultConfig mirrors the fabric's original timeout/overflow defaults.
func DefaultConfig(frontend string) Config {
	return Config{
		Frontend:       frontend,
		SoftTimeout:    1 * time.Second,
		HardTimeout:    1500 * time.Millisecond,
		OverflowBudget: 1,
		PoolSize:       10,
		IOThreads:      5,
	}
}

// Fabric is a single-owner call path to the broker: one DEALER socket,
// one poller, one in-flight request at a time, guarded by a mutex so
// concurrent callers serialize rather than race the socket.
type Fabric struct {
	cfg Config

	mu     sync.Mutex
	socket *czmq.Sock
	poller *czmq.Poller

	overflowMu sync.Mutex
	overflow   map[string]int // worker id -> consecutive soft-timeout overflows
}

// NewFabric dials cfg.Frontend and returns a ready-to-use Fabric.
func NewFabric(cfg Config) (*Fabric, error) {
	f := &Fabric{cfg: cfg, overflow: make(map[string]int)}
	if err := f.connect(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fabric) connect() error {
	f.close()

	socket, err := czmq.NewDealer(f.cfg.Frontend)
	if err != nil {
		return newCallError(mdp.ErrConnectionFailed, fmt.Sprintf("dial %s failed: %s", f.cfg.Frontend, err))
	}
	f.socket = socket

	poller, err := czmq.NewPoller(f.socket)
	if err != nil {
		return newCallError(mdp.ErrConnectionFailed, fmt.Sprintf("poller setup failed: %s", err))
	}
	f.poller = poller

	if err := f.socket.Connect(f.cfg.Frontend); err != nil {
		return newCallError(mdp.ErrConnectionFailed, fmt.Sprintf("connect %s failed: %s", f.cfg.Frontend, err))
	}
	return nil
}

func (f *Fabric) close() {
	if f.poller != nil {
		f.poller.Destroy()
		f.poller = nil
	}
	if f.socket != nil {
		f.socket.Destroy()
		f.socket = nil
	}
}

// Close releases the fabric's socket. A Fabric must not be used again
// after Close.
func (f *Fabric) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.close()
}

// Execute sends job to the broker and blocks for its result, applying
// the two-tier timeout policy: a reply slower than SoftTimeout but
// within HardTimeout is accepted, but counted against that worker's
// overflow budget; once the budget is exhausted, further slow replies
// from the same worker fail with ErrTimeout even though they arrived
// inside HardTimeout. A reply slower than HardTimeout always fails.
func (f *Fabric) Execute(job mdp.Job) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()

	if err := f.socket.SendMessage(mdp.EncodeJob(job)); err != nil {
		// Any transport fault on an owned socket means the connection
		// is suspect; reconnect so the next call starts clean.
		_ = f.connect()
		return nil, newCallError(mdp.ErrExecutionError, fmt.Sprintf("send failed: %s", err))
	}

	socket, err := f.poller.Wait(int(f.cfg.HardTimeout / time.Millisecond))
	if err != nil {
		_ = f.connect()
		return nil, newCallError(mdp.ErrExecutionError, fmt.Sprintf("poll failed: %s", err))
	}
	if socket == nil {
		_ = f.connect()
		return nil, newCallError(mdp.ErrTimeout, fmt.Sprintf("no reply within hard timeout %s", f.cfg.HardTimeout))
	}

	recv, err := socket.RecvMessage()
	if err != nil {
		_ = f.connect()
		return nil, newCallError(mdp.ErrExecutionError, fmt.Sprintf("recv failed: %s", err))
	}

	workerID, ok, payload, err := mdp.DecodeResult(recv)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if elapsed > f.cfg.SoftTimeout {
		overflowed := f.bumpOverflow(workerID)
		if overflowed > f.cfg.OverflowBudget {
			log.WithFields(log.Fields{
				"worker":   workerID,
				"elapsed":  elapsed,
				"overflow": overflowed,
			}).Warn("worker exceeded overflow budget, treating as timeout")
			return nil, newCallError(mdp.ErrTimeout, fmt.Sprintf("worker %q exceeded overflow budget", workerID))
		}
	} else {
		f.resetOverflow(workerID)
	}

	if !ok {
		return nil, newCallError(mdp.ErrExecutionError, string(payload))
	}
	return payload, nil
}

func (f *Fabric) bumpOverflow(workerID string) int {
	f.overflowMu.Lock()
	defer f.overflowMu.Unlock()
	f.overflow[workerID]++
	return f.overflow[workerID]
}

func (f *Fabric) resetOverflow(workerID string) {
	f.overflowMu.Lock()
	defer f.overflowMu.Unlock()
	f.overflow[workerID] = 0
}
