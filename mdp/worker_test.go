package mdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWorkerAssignsStableID(t *testing.T) {
	w := NewWorker("inproc://test-worker-id", map[string]TargetFunc{})
	assert.NotEmpty(t, w.id)

	other := NewWorker("inproc://test-worker-id", map[string]TargetFunc{})
	assert.NotEqual(t, w.id, other.id)
}

func TestWorkerHandleRequestUnknownTarget(t *testing.T) {
	var sent [][]byte
	w := &Worker{
		id:      "worker-unknown",
		targets: map[string]TargetFunc{},
	}
	w.replyFunc = func(ok bool, payload []byte) {
		sent = append(sent, payload)
		assert.False(t, ok)
	}

	w.handleRequest(EncodeJob(NewJob("nonexistent")))

	assert.Len(t, sent, 1)
	assert.Contains(t, string(sent[0]), "nonexistent")
}

func TestWorkerHandleRequestTargetError(t *testing.T) {
	var gotOK bool
	var gotPayload []byte
	w := &Worker{
		id: "worker-error",
		targets: map[string]TargetFunc{
			"boom": func(args [][]byte) ([]byte, error) {
				return nil, assert.AnError
			},
		},
	}
	w.replyFunc = func(ok bool, payload []byte) {
		gotOK = ok
		gotPayload = payload
	}

	w.handleRequest(EncodeJob(NewJob("boom")))

	assert.False(t, gotOK)
	assert.Equal(t, assert.AnError.Error(), string(gotPayload))
}

func TestWorkerHandleRequestSuccess(t *testing.T) {
	var gotOK bool
	var gotPayload []byte
	w := &Worker{
		id: "worker-ok",
		targets: map[string]TargetFunc{
			"square": func(args [][]byte) ([]byte, error) {
				return []byte("9"), nil
			},
		},
	}
	w.replyFunc = func(ok bool, payload []byte) {
		gotOK = ok
		gotPayload = payload
	}

	w.handleRequest(EncodeJob(NewJob("square", "3")))

	assert.True(t, gotOK)
	assert.Equal(t, "9", string(gotPayload))
}

func TestWorkerHandleRequestMalformedFrame(t *testing.T) {
	called := false
	w := &Worker{
		id:      "worker-malformed",
		targets: map[string]TargetFunc{},
	}
	w.replyFunc = func(ok bool, payload []byte) {
		called = true
	}

	w.handleRequest([][]byte{[]byte("NOPE")})

	assert.False(t, called, "a malformed request frame should be dropped, not replied to")
}
