package mdp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// RegistrationLoop is the background task bound to the worker
// registration endpoint. It is the only goroutine that ever calls
// RecvMessage on the worker-facing socket (ZeroMQ sockets are not safe
// for concurrent reads), so it also doubles as the demultiplexer that
// hands REPLY frames back to whichever dispatch attempt is waiting on
// them — there is nowhere else in the process that could safely do it.
type RegistrationLoop struct {
	endpoint string
	socket   *czmq.Sock
	registry *Registry

	sendMu sync.Mutex // serializes writers across concurrent dispatch goroutines

	waitersMu sync.Mutex
	waiters   map[string]chan [][]byte

	started int32
	stop    chan struct{}
	done    chan struct{}
}

// NewRegistrationLoop binds a ROUTER socket at endpoint and wires it to
// registry.
func NewRegistrationLoop(endpoint string, registry *Registry) (*RegistrationLoop, error) {
	socket, err := czmq.NewRouter(endpoint)
	if err != nil {
		return nil, newDispatchError(ErrConnectionFailed, fmt.Sprintf("failed to bind registration endpoint %s: %s", endpoint, err))
	}

	return &RegistrationLoop{
		endpoint: endpoint,
		socket:   socket,
		registry: registry,
		waiters:  make(map[string]chan [][]byte),
	}, nil
}

// Start begins the read loop. A second call is a no-op.
func (l *RegistrationLoop) Start() {
	if !atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	log.WithField("endpoint", l.endpoint).Info("registration loop starting")
	go l.run()
}

// Stop ends the read loop and unbinds the socket. A second call is a
// no-op.
func (l *RegistrationLoop) Stop() {
	if !atomic.CompareAndSwapInt32(&l.started, 1, 0) {
		return
	}
	close(l.stop)
	<-l.done

	_ = l.socket.Unbind(l.endpoint)
	l.socket.Destroy()
	cleanupIPCEndpoint(l.endpoint)
	log.WithField("endpoint", l.endpoint).Info("registration loop stopped")
}

func (l *RegistrationLoop) run() {
	defer close(l.done)

	poller, err := czmq.NewPoller(l.socket)
	if err != nil {
		log.WithError(err).Error("registration loop failed to create poller")
		return
	}
	defer poller.Destroy()

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		socket, err := poller.Wait(int(HeartbeatInterval / time.Millisecond))
		if err != nil {
			log.WithError(err).Error("registration poller wait failed")
			continue
		}
		if socket == nil {
			continue
		}

		recv, err := socket.RecvMessage()
		if err != nil {
			log.WithError(err).Error("registration socket recv failed")
			continue
		}
		l.handle(byte2DToStringArray(recv))
	}
}

func (l *RegistrationLoop) handle(msg []string) {
	sender, msg := popStr(msg)
	command, msg := popStr(msg)

	switch command {
	case MdpwReady, MdpwHeartbeat:
		l.registry.Add(sender)
	case MdpwDisconnect:
		l.registry.Delete(sender)
	case MdpwReply:
		l.deliver(sender, msg)
	default:
		log.WithFields(log.Fields{
			"sender":  sender,
			"command": mdpCommands[command],
		}).Warn("registration loop received unexpected command")
	}
}

func (l *RegistrationLoop) deliver(identity string, msg []string) {
	l.waitersMu.Lock()
	ch, ok := l.waiters[identity]
	l.waitersMu.Unlock()

	if !ok {
		// Late reply from a worker that was already evicted. Discarded
		// per the cyclic-reference design note: the registry revoked
		// the borrow, so nobody is listening anymore.
		log.WithField("worker", identity).Debug("discarding reply from unowned worker")
		return
	}

	ch <- stringArrayToByte2D(msg)
}

// SendToWorker forwards frame to the worker named by identity. Sends are
// non-blocking from the transport's point of view; any back-pressure
// surfaces as ExecutionError per the design's non-blocking-send policy.
func (l *RegistrationLoop) SendToWorker(identity string, frame [][]byte) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	out := make([][]byte, 0, len(frame)+1)
	out = append(out, []byte(identity))
	out = append(out, frame...)

	if err := l.socket.SendMessage(out); err != nil {
		return newDispatchError(ErrExecutionError, fmt.Sprintf("send to worker %q failed: %s", identity, err))
	}
	return nil
}

// AwaitReply blocks until a reply frame from the given worker identity
// arrives, or timeout elapses.
func (l *RegistrationLoop) AwaitReply(identity string, timeout time.Duration) ([][]byte, error) {
	ch := make(chan [][]byte, 1)

	l.waitersMu.Lock()
	l.waiters[identity] = ch
	l.waitersMu.Unlock()

	defer func() {
		l.waitersMu.Lock()
		delete(l.waiters, identity)
		l.waitersMu.Unlock()
	}()

	select {
	case frame := <-ch:
		return frame, nil
	case <-time.After(timeout):
		return nil, newDispatchError(ErrTimeout, fmt.Sprintf("no reply from worker %q within %s", identity, timeout))
	}
}
