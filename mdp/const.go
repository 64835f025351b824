// Package mdp implements a Majordomo-style job-dispatch broker: ROUTER
// sockets (a client frontend and a worker registration endpoint) that
// route opaque jobs from clients onto a dynamic pool of
// worker processes and returns results synchronously to the caller.
// Implements the MDP/Worker spec at http://rfc.zeromq.org/spec:7.
package mdp

import "time"

const (
	// MdpClient identifies the client side of the protocol on the wire.
	MdpClient = "MDPC01"

	// MdpWorker identifies the worker side of the protocol on the wire.
	MdpWorker = "MDPW01"

	// HeartbeatLiveness is the number of heartbeat cycles a worker is
	// deemed to be dead after.
	HeartbeatLiveness = 3

	// HeartbeatInterval is the interval at which workers send heartbeats
	// to the broker, and the default for Config.HeartbeatInterval.
	HeartbeatInterval = 2500 * time.Millisecond

	// HeartbeatExpiry is the total duration before an unresponsive
	// worker is purged from the registry.
	HeartbeatExpiry = HeartbeatInterval * HeartbeatLiveness

	// DefaultFrontend is the default client-facing broker endpoint.
	DefaultFrontend = "ipc:///tmp/dispatchd-frontend.ipc"

	// DefaultRegistration is the default worker registration endpoint.
	DefaultRegistration = "ipc:///tmp/dispatchd-registration.ipc"
)

// MDP worker commands (single-byte identifiers).
const (
	MdpwReady      = string(rune(0x01)) // worker announces itself
	MdpwRequest    = string(rune(0x02)) // broker dispatches a job to a worker
	MdpwReply      = string(rune(0x03)) // worker returns a job result
	MdpwHeartbeat  = string(rune(0x04)) // keepalive in either direction
	MdpwDisconnect = string(rune(0x05)) // broker tells a worker to reconnect
)

// MMI namespace and well-known service names.
const (
	// MMINamespace prefixes reserved management-interface service names.
	MMINamespace = "mmi."

	// MMIService answers MMICodeOK when any worker is idle and
	// MMICodeNotFound otherwise; job arguments are not consulted.
	MMIService = "mmi.service"

	// MMIWorkers answers MMICodeOK followed by the comma-separated
	// identities of every live worker, idle or busy.
	MMIWorkers = "mmi.workers"
)

// MMI response codes, HTTP-flavored per convention.
const (
	MMICodeOK       = "200"
	MMICodeNotFound = "404"
)

// mdpCommands names the worker commands, for logging.
var mdpCommands = map[string]string{
	MdpwReady:      "READY",
	MdpwRequest:    "REQUEST",
	MdpwReply:      "REPLY",
	MdpwHeartbeat:  "HEARTBEAT",
	MdpwDisconnect: "DISCONNECT",
}
