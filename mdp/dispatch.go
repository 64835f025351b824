package mdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Broker is the dispatch engine (C4): it owns the client-facing frontend
// socket, the worker registry (C2), and the registration loop (C3), and
// wires them together into the retrying checkout-send-await-release
// cycle a single job dispatch runs through.
type Broker struct {
	Config Config

	frontendEndpoint string
	frontend         *czmq.Sock
	frontendSendMu   sync.Mutex

	registry     *Registry
	registration *RegistrationLoop
	mmi          *MMIHandler

	started int32
	stop    chan struct{}
	done    chan struct{}
}

// NewBroker builds a broker bound to the frontend and registration
// endpoints named in cfg. Both sockets are bound eagerly; NewBroker
// fails if either bind fails.
func NewBroker(cfg Config) (*Broker, error) {
	frontend, err := czmq.NewRouter(cfg.Frontend)
	if err != nil {
		return nil, newDispatchError(ErrConnectionFailed,
			fmt.Sprintf("failed to bind frontend endpoint %s: %s", cfg.Frontend, err))
	}

	registry := NewRegistry()
	registration, err := NewRegistrationLoop(cfg.RegistrationEndpoint, registry)
	if err != nil {
		frontend.Destroy()
		return nil, err
	}

	b := &Broker{
		Config:           cfg,
		frontendEndpoint: cfg.Frontend,
		frontend:         frontend,
		registry:         registry,
		registration:     registration,
	}
	b.mmi = NewMMIHandler(registry)
	return b, nil
}

// Registry exposes the broker's worker registry for diagnostics (e.g. a
// health endpoint reporting live worker count).
func (b *Broker) Registry() *Registry {
	return b.registry
}

// Start brings the broker fully online: the registration loop's reader,
// the frontend reader, and the idle-worker reaper. A second call is a
// no-op.
func (b *Broker) Start() {
	if !atomic.CompareAndSwapInt32(&b.started, 0, 1) {
		return
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	b.registration.Start()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.runFrontend()
	}()
	go func() {
		defer wg.Done()
		b.runReaper()
	}()

	go func() {
		wg.Wait()
		close(b.done)
	}()

	log.WithFields(log.Fields{
		"frontend":     b.Config.Frontend,
		"registration": b.Config.RegistrationEndpoint,
	}).Info("broker started")
}

// Stop shuts the broker down. A second call is a no-op.
func (b *Broker) Stop() {
	if !atomic.CompareAndSwapInt32(&b.started, 1, 0) {
		return
	}
	close(b.stop)
	<-b.done

	b.registration.Stop()
	_ = b.frontend.Unbind(b.frontendEndpoint)
	b.frontend.Destroy()
	cleanupIPCEndpoint(b.frontendEndpoint)
	log.Info("broker stopped")
}

// evict releases a worker's handle as OutcomeEvict and tells the worker
// itself to reconnect, mirroring the teacher broker's forced-disconnect
// behavior: a worker dropped for a protocol violation or timeout is told
// why rather than left to time out its own heartbeat liveness.
func (b *Broker) evict(handle *WorkerHandle) {
	b.registry.Release(handle, OutcomeEvict)
	if err := b.registration.SendToWorker(handle.Identity, wrapDisconnect()); err != nil {
		log.WithError(err).WithField("worker", handle.Identity).Debug("failed to notify evicted worker")
	}
}

func (b *Broker) runReaper() {
	expiry := time.Duration(b.Config.HeartbeatLiveness) * b.Config.HeartbeatInterval
	ticker := time.NewTicker(b.Config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.registry.PurgeExpired(expiry)
		}
	}
}

func (b *Broker) runFrontend() {
	poller, err := czmq.NewPoller(b.frontend)
	if err != nil {
		log.WithError(err).Error("frontend poller failed to start")
		return
	}
	defer poller.Destroy()

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		socket, err := poller.Wait(int(b.Config.HeartbeatInterval / time.Millisecond))
		if err != nil {
			log.WithError(err).Error("frontend poller wait failed")
			continue
		}
		if socket == nil {
			continue
		}

		recv, err := socket.RecvMessage()
		if err != nil {
			log.WithError(err).Error("frontend recv failed")
			continue
		}

		msg := byte2DToStringArray(recv)
		sender, msg := popStr(msg)
		frame := stringArrayToByte2D(msg)

		go b.handleClientRequest(sender, frame)
	}
}

func (b *Broker) handleClientRequest(clientID string, frame [][]byte) {
	if mmiReply, handled := b.mmi.HandleRequest(frame); handled {
		b.replyToClient(clientID, mmiReply)
		return
	}

	job, err := DecodeJob(frame)
	if err != nil {
		log.WithError(err).WithField("client", clientID).Warn("dropping malformed client request")
		return
	}

	result, err := b.Execute(context.Background(), job)
	if err != nil {
		// Retries exhausted or a fatal error. Nothing is sent back; the
		// client's own hard_timeout poll deadline fires Timeout locally,
		// per the two-tier timeout policy's client-side ownership of
		// that outcome.
		log.WithError(err).WithFields(log.Fields{
			"client": clientID,
			"target": job.TargetName,
		}).Warn("dispatch failed after retries")
		return
	}

	b.replyToClient(clientID, EncodeResult(result.WorkerID, result.OK, result.Payload))
}

func (b *Broker) replyToClient(clientID string, frame [][]byte) {
	b.frontendSendMu.Lock()
	defer b.frontendSendMu.Unlock()

	out := make([][]byte, 0, len(frame)+1)
	out = append(out, []byte(clientID))
	out = append(out, frame...)

	if err := b.frontend.SendMessage(out); err != nil {
		log.WithError(err).WithField("client", clientID).Error("failed to reply to client")
	}
}

// Execute runs job to completion, retrying retryable failures per
// Config.Retries with exponential backoff between attempts. It gives up
// and returns the last error once attempts are exhausted; if ctx is done
// while backing off between attempts it fails with ErrTimeout instead.
func (b *Broker) Execute(ctx context.Context, job Job) (Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.Config.RetryBackoffMin
	bo.MaxInterval = b.Config.RetryBackoffMax
	bo.Multiplier = b.Config.RetryBackoffMult

	var lastErr error
	for attempt := 0; attempt <= b.Config.Retries; attempt++ {
		if attempt > 0 {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				break
			}
			select {
			case <-ctx.Done():
				return Result{}, newDispatchError(ErrTimeout, "context cancelled while backing off")
			case <-time.After(delay):
			}
		}

		attemptStart := time.Now()
		result, err := b.dispatchOnce(ctx, job)
		attemptDuration := time.Since(attemptStart)

		if err == nil {
			log.WithFields(log.Fields{
				"target":              job.TargetName,
				"attempt":             attempt + 1,
				"attempt_duration_ms": attemptDuration.Milliseconds(),
			}).Debug("dispatch attempt succeeded")
			return result, nil
		}
		lastErr = err

		dispatchErr, ok := err.(*DispatchError)
		if !ok || !dispatchErr.Retryable() {
			log.WithError(err).WithFields(log.Fields{
				"target":              job.TargetName,
				"attempt":             attempt + 1,
				"attempt_duration_ms": attemptDuration.Milliseconds(),
			}).Debug("dispatch attempt failed, not retryable")
			return Result{}, err
		}

		log.WithError(err).WithFields(log.Fields{
			"target":              job.TargetName,
			"attempt":             attempt + 1,
			"attempt_duration_ms": attemptDuration.Milliseconds(),
		}).Debug("dispatch attempt failed, retrying")
	}

	return Result{}, lastErr
}

// dispatchOnce runs the job's single-attempt checkout/send/await/release
// cycle (§4.4): checkout a worker within the acquisition deadline, forward
// the job, wait for its reply within Config.SoftTimeout, then release the
// worker to IDLE once a well-formed result arrives (ok or not) or evict it
// on a send failure, timeout or malformed reply.
func (b *Broker) dispatchOnce(ctx context.Context, job Job) (Result, error) {
	checkoutCtx, cancel := context.WithTimeout(ctx, b.Config.AcquisitionTimeout)
	defer cancel()

	handle, err := b.registry.Checkout(checkoutCtx)
	if err != nil {
		return Result{}, err
	}

	requestFrame := wrapRequest(EncodeJob(job))
	if err := b.registration.SendToWorker(handle.Identity, requestFrame); err != nil {
		b.evict(handle)
		return Result{}, err
	}

	replyFrame, err := b.registration.AwaitReply(handle.Identity, b.Config.SoftTimeout)
	if err != nil {
		b.evict(handle)
		return Result{}, err
	}

	workerID, ok, payload, err := DecodeResult(replyFrame)
	if err != nil {
		b.evict(handle)
		return Result{}, err
	}

	b.registry.Release(handle, OutcomeOK)

	if !ok {
		return Result{}, newDispatchError(ErrExecutionError,
			fmt.Sprintf("worker %q reported failure executing %q: %s", workerID, job.TargetName, payload))
	}

	return Result{WorkerID: workerID, OK: true, Payload: payload}, nil
}
