package mdp

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// TargetFunc is a worker's implementation of one named job target. It
// returns the bytes to send back as a successful result, or an error if
// the job failed — the worker reports failure on the wire but does not
// retry it itself; that's the dispatch engine's job.
type TargetFunc func(args [][]byte) ([]byte, error)

// Worker connects to a broker's registration endpoint, announces itself,
// and serves jobs dispatched to any of its registered targets.
type Worker struct {
	id       string
	endpoint string
	targets  map[string]TargetFunc

	socket *czmq.Sock
	poller *czmq.Poller

	heartbeat time.Duration
	reconnect time.Duration
	liveness  int

	shutdown bool

	// replyFunc overrides how a finished target's result is delivered,
	// for tests that exercise handleRequest without a live socket. Nil
	// means send over the wire via reply.
	replyFunc func(ok bool, payload []byte)
}

// NewWorker builds a worker that will dial endpoint and serve the given
// named targets once Run is called. Each worker is assigned a random,
// stable id, carried on every result it sends back, so a client fabric
// can track per-worker timeout overflow independently of the transport
// identity ZeroMQ assigns the socket.
func NewWorker(endpoint string, targets map[string]TargetFunc) *Worker {
	w := &Worker{
		id:        uuid.NewString(),
		endpoint:  endpoint,
		targets:   targets,
		heartbeat: HeartbeatInterval,
		reconnect: HeartbeatInterval,
	}
	runtime.SetFinalizer(w, (*Worker).Close)
	return w
}

// Close destroys the worker's socket, if any.
func (w *Worker) Close() {
	if w.socket != nil {
		w.socket.Destroy()
		w.socket = nil
	}
}

// Shutdown asks Run to return after its current poll cycle.
func (w *Worker) Shutdown() {
	w.shutdown = true
}

func (w *Worker) connect() error {
	w.Close()

	socket, err := czmq.NewDealer(w.endpoint)
	if err != nil {
		return newDispatchError(ErrConnectionFailed, fmt.Sprintf("worker dial %s failed: %s", w.endpoint, err))
	}
	w.socket = socket
	if err := w.socket.Connect(w.endpoint); err != nil {
		return newDispatchError(ErrConnectionFailed, fmt.Sprintf("worker connect %s failed: %s", w.endpoint, err))
	}

	poller, err := czmq.NewPoller(w.socket)
	if err != nil {
		return newDispatchError(ErrConnectionFailed, fmt.Sprintf("worker poller setup failed: %s", err))
	}
	w.poller = poller

	if err := w.socket.SendMessage(wrapReady("worker")); err != nil {
		return newDispatchError(ErrExecutionError, fmt.Sprintf("worker ready announce failed: %s", err))
	}

	w.liveness = HeartbeatLiveness
	log.WithField("endpoint", w.endpoint).Info("worker connected")
	return nil
}

// Run connects to the broker and serves requests until Shutdown is
// called or ctx-less deliberately: callers that need cancellation should
// call Shutdown from another goroutine.
func (w *Worker) Run() error {
	if err := w.connect(); err != nil {
		return err
	}
	defer w.Close()

	heartbeatAt := time.Now().Add(w.heartbeat)

	for !w.shutdown {
		socket, err := w.poller.Wait(int(w.heartbeat / time.Millisecond))
		if err != nil {
			log.WithError(err).Error("worker poller wait failed")
			continue
		}

		if socket == nil {
			w.liveness--
			if w.liveness <= 0 {
				time.Sleep(w.reconnect)
				if err := w.connect(); err != nil {
					log.WithError(err).Error("worker reconnect failed")
				}
				heartbeatAt = time.Now().Add(w.heartbeat)
			}
		} else {
			recv, err := socket.RecvMessage()
			if err != nil {
				log.WithError(err).Error("worker recv failed")
				continue
			}
			w.liveness = HeartbeatLiveness
			w.handle(byte2DToStringArray(recv))
		}

		if time.Now().After(heartbeatAt) {
			if err := w.socket.SendMessage(wrapHeartbeat()); err != nil {
				log.WithError(err).Error("worker heartbeat send failed")
			}
			heartbeatAt = time.Now().Add(w.heartbeat)
		}
	}

	return nil
}

func (w *Worker) handle(msg []string) {
	command, msg := popStr(msg)

	switch command {
	case MdpwRequest:
		w.handleRequest(stringArrayToByte2D(msg))
	case MdpwHeartbeat:
		log.Trace("worker received heartbeat")
	case MdpwDisconnect:
		log.Debug("worker told to reconnect")
		if err := w.connect(); err != nil {
			log.WithError(err).Error("worker reconnect after disconnect failed")
		}
	default:
		log.WithField("command", mdpCommands[command]).Warn("worker received unexpected command")
	}
}

func (w *Worker) handleRequest(frame [][]byte) {
	job, err := DecodeJob(frame)
	if err != nil {
		log.WithError(err).Error("worker dropped malformed request")
		return
	}

	target, ok := w.targets[job.TargetName]
	if !ok {
		w.reply(false, []byte(fmt.Sprintf("unknown target %q", job.TargetName)))
		return
	}

	payload, err := target(job.Args)
	if err != nil {
		w.reply(false, []byte(err.Error()))
		return
	}
	w.reply(true, payload)
}

func (w *Worker) reply(ok bool, payload []byte) {
	if w.replyFunc != nil {
		w.replyFunc(ok, payload)
		return
	}
	frame := wrapReply(EncodeResult(w.id, ok, payload))
	if err := w.socket.SendMessage(frame); err != nil {
		log.WithError(err).Error("worker failed to send reply")
	}
}
