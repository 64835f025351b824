package mdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkerState is the lifecycle state of a worker record. DEAD workers are
// removed from the registry outright and are never observable via
// Snapshot.
type WorkerState int

const (
	// StateIdle marks a worker as available for dispatch.
	StateIdle WorkerState = iota
	// StateBusy marks a worker as holding exactly one in-flight job.
	StateBusy
)

// String implements fmt.Stringer.
func (s WorkerState) String() string {
	if s == StateBusy {
		return "BUSY"
	}
	return "IDLE"
}

// WorkerInfo is a diagnostic, read-only view of a worker record returned
// by Snapshot.
type WorkerInfo struct {
	Identity string
	State    WorkerState
	LastSeen time.Time
}

// workerRecord is the registry's internal bookkeeping for a single live
// worker. A worker record never owns its dispatch: the dispatch holds a
// scoped WorkerHandle that the registry can revoke by deleting the
// record, so a late reply from a revoked worker is simply discarded by
// its caller.
type workerRecord struct {
	identity string
	state    WorkerState
	lastSeen time.Time
}

// Registry tracks the set of currently-live workers and hands them out
// one at a time for dispatch. All operations are safe under concurrent
// callers; a single mutex plus a condition variable signaling "a worker
// became idle" is sufficient (spec design note §9a) — no finer-grained
// locking is required.
type Registry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	workers map[string]*workerRecord
	idle    []string // identities, oldest-waiting first
}

// NewRegistry constructs an empty worker registry.
func NewRegistry() *Registry {
	r := &Registry{workers: make(map[string]*workerRecord)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Add inserts a worker in state IDLE, or refreshes LastSeen if the
// identity is already known. Idempotent: re-adding a known identity never
// duplicates the record, and does not change a BUSY worker's state.
func (r *Registry) Add(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[identity]
	if ok {
		w.lastSeen = time.Now()
		return
	}

	w = &workerRecord{identity: identity, state: StateIdle, lastSeen: time.Now()}
	r.workers[identity] = w
	r.idle = append(r.idle, identity)
	log.WithField("worker", identity).Debug("registered new worker")
	r.cond.Broadcast()
}

// Delete removes a worker unconditionally. If a dispatch currently holds
// it, that dispatch's subsequent Release/heartbeat on the handle becomes
// a no-op and its in-flight call must fail on its own deadline.
func (r *Registry) Delete(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(identity)
}

func (r *Registry) deleteLocked(identity string) {
	if _, ok := r.workers[identity]; !ok {
		return
	}
	delete(r.workers, identity)
	r.idle = removeString(r.idle, identity)
	log.WithField("worker", identity).Debug("removed worker")
}

// WorkerHandle is a scoped borrow of one BUSY worker, returned by
// Checkout. Exactly one dispatch holds a given handle at a time.
type WorkerHandle struct {
	Identity string
	registry *Registry
	released bool
}

// Checkout atomically chooses one IDLE worker, marks it BUSY, and returns
// a scoped handle. It blocks until a worker becomes idle or ctx is done,
// whichever comes first; on context deadline it fails with ErrNoWorker.
func (r *Registry) Checkout(ctx context.Context) (*WorkerHandle, error) {
	// sync.Cond has no context-aware Wait, so we pair it with a done
	// channel that a background goroutine closes on ctx.Done and also
	// broadcasts to wake any blocked waiter.
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		r.cond.Broadcast()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.idle) == 0 {
		select {
		case <-done:
			return nil, newDispatchError(ErrNoWorker, "no idle worker within acquisition deadline")
		default:
		}
		r.cond.Wait()
	}

	identity := r.idle[0]
	r.idle = r.idle[1:]
	w, ok := r.workers[identity]
	if !ok {
		// Raced with a Delete between the idle-list pop and the map
		// lookup; the caller just retries via the normal NoWorker path.
		return nil, newDispatchError(ErrNoWorker, "worker vanished during checkout")
	}
	w.state = StateBusy
	return &WorkerHandle{Identity: identity, registry: r}, nil
}

// ReleaseOutcome is passed to Release to say what should happen to the
// worker that was checked out.
type ReleaseOutcome int

const (
	// OutcomeOK returns the worker to IDLE.
	OutcomeOK ReleaseOutcome = iota
	// OutcomeEvict removes the worker from the registry entirely.
	OutcomeEvict
)

// Release ends a scoped checkout. Calling Release twice on the same
// handle, or releasing a handle whose worker was independently deleted,
// is a safe no-op.
func (r *Registry) Release(h *WorkerHandle, outcome ReleaseOutcome) {
	if h == nil || h.released {
		return
	}
	h.released = true

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[h.Identity]
	if !ok {
		return
	}

	if outcome == OutcomeEvict {
		r.deleteLocked(h.Identity)
		return
	}

	w.state = StateIdle
	w.lastSeen = time.Now()
	r.idle = append(r.idle, h.Identity)
	r.cond.Broadcast()
}

// Snapshot returns a consistent, diagnostic copy of all live workers.
// DEAD workers are never observable here — they have already been
// removed from the map.
func (r *Registry) Snapshot() []WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WorkerInfo, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, WorkerInfo{Identity: w.identity, State: w.state, LastSeen: w.lastSeen})
	}
	return out
}

// Len returns the number of live workers, idle or busy.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// IdleCount returns the number of currently idle workers.
func (r *Registry) IdleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idle)
}

// PurgeExpired deletes every idle worker whose last heartbeat is older
// than expiry. It is the registry half of the broker's heartbeat sweep
// (spec §4.3 / §9: heartbeat frequency and dead-worker GC are left to the
// implementation, provided the state invariants hold).
func (r *Registry) PurgeExpired(expiry time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var stillIdle []string
	for _, identity := range r.idle {
		w, ok := r.workers[identity]
		if !ok {
			continue
		}
		if now.Sub(w.lastSeen) > expiry {
			log.WithField("worker", identity).Debug("purging expired worker")
			delete(r.workers, identity)
			continue
		}
		stillIdle = append(stillIdle, identity)
	}
	r.idle = stillIdle
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// String implements fmt.Stringer for debugging.
func (h *WorkerHandle) String() string {
	return fmt.Sprintf("WorkerHandle{%s}", h.Identity)
}
