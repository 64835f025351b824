package client

import (
	"context"
	"fmt"

	"github.com/dispatchd/dispatchd/mdp"
	log "github.com/sirupsen/logrus"
)

// Pool manages a fixed number of Fabric instances and hands them out one
// at a time, replacing any fabric that fails during a call rather than
// risk reusing a socket left in an unknown state.
type Pool struct {
	cfg     Config
	fabrics chan *Fabric
}

// NewPool builds a pool of cfg.PoolSize fabrics, all dialing
// cfg.Frontend. If any fabric fails to connect, the partially-built pool
// is torn down and the error returned.
func NewPool(cfg Config) (*Pool, error) {
	size := cfg.PoolSize
	if size <= 0 {
		return nil, fmt.Errorf("pool: PoolSize must be positive, got %d", size)
	}

	p := &Pool{cfg: cfg, fabrics: make(chan *Fabric, size)}

	for i := 0; i < size; i++ {
		f, err := NewFabric(cfg)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool: failed to create fabric %d/%d: %w", i+1, size, err)
		}
		p.fabrics <- f
	}

	log.WithFields(log.Fields{"size": size, "frontend": cfg.Frontend}).Info("client pool ready")
	return p, nil
}

// Execute checks out a fabric, runs job through it, and returns it to the
// pool. A fabric that errors is closed and replaced before the error is
// returned, so a later caller never inherits a broken socket.
func (p *Pool) Execute(ctx context.Context, job mdp.Job) ([]byte, error) {
	var f *Fabric
	select {
	case f = <-p.fabrics:
	case <-ctx.Done():
		return nil, newCallError(mdp.ErrNoWorker, "no fabric available from pool before context done")
	}

	result, err := f.Execute(job)
	if err != nil {
		f.Close()
		replacement, rerr := NewFabric(p.cfg)
		if rerr != nil {
			// The broker is probably down. Drop this slot rather than
			// put back a closed fabric; the pool runs one fabric short
			// from here on, as nothing refills a dropped slot.
			log.WithError(rerr).Error("pool failed to replace broken fabric, pool shrinking by one")
			return nil, err
		}
		p.fabrics <- replacement
		return nil, err
	}

	p.fabrics <- f
	return result, nil
}

// Close tears down every fabric currently held by the pool. Fabrics
// checked out by an in-flight Execute are not closed: that Execute panics
// when it hands its fabric back to the closed pool, so Close must not
// run while calls are in flight.
func (p *Pool) Close() {
	close(p.fabrics)
	for f := range p.fabrics {
		f.Close()
	}
}
