package mdp

import (
	"os"
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ipcScheme is the endpoint prefix identifying a filesystem-backed ZeroMQ
// transport, as opposed to tcp:// or inproc://.
const ipcScheme = "ipc://"

// cleanupIPCEndpoint removes the backing file of an ipc:// endpoint on
// orderly shutdown (spec §6): the broker, not the operator, owns that
// path's lifecycle. Endpoints on any other transport are left alone, and
// a path that's already gone is not an error.
func cleanupIPCEndpoint(endpoint string) {
	if !strings.HasPrefix(endpoint, ipcScheme) {
		return
	}

	path := strings.TrimPrefix(endpoint, ipcScheme)
	if path == "" {
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", path).Warn("failed to remove ipc endpoint file")
	}
}

// popStr pops the first frame off msg, returning it and the remainder.
func popStr(msg []string) (head string, tail []string) {
	if len(msg) == 0 {
		return "", msg
	}
	return msg[0], msg[1:]
}

// stringArrayToByte2D converts a string frame list into the [][]byte shape
// the transport's SendMessage expects.
func stringArrayToByte2D(in []string) [][]byte {
	out := make([][]byte, len(in))
	for i, s := range in {
		out[i] = []byte(s)
	}
	return out
}

// byte2DToStringArray is the inverse of stringArrayToByte2D.
func byte2DToStringArray(in [][]byte) []string {
	out := make([]string, len(in))
	for i, b := range in {
		out[i] = string(b)
	}
	return out
}

// captureStack grabs a compact stack trace for diagnostic payloads.
func captureStack() string {
	return string(debug.Stack())
}
