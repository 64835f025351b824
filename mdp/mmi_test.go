package mdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMMIServiceNoWorkers(t *testing.T) {
	reg := NewRegistry()
	h := NewMMIHandler(reg)

	reply, handled := h.HandleRequest(EncodeJob(NewJob(MMIService)))
	require.True(t, handled)

	_, ok, payload, err := DecodeResult(reply)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, MMICodeNotFound, string(payload))
}

func TestMMIServiceWithIdleWorker(t *testing.T) {
	reg := NewRegistry()
	reg.Add("w1")
	h := NewMMIHandler(reg)

	reply, handled := h.HandleRequest(EncodeJob(NewJob(MMIService)))
	require.True(t, handled)

	_, _, payload, err := DecodeResult(reply)
	require.NoError(t, err)
	assert.Equal(t, MMICodeOK, string(payload))
}

func TestMMIWorkersReport(t *testing.T) {
	reg := NewRegistry()
	reg.Add("w1")
	reg.Add("w2")
	h := NewMMIHandler(reg)

	reply, handled := h.HandleRequest(EncodeJob(NewJob(MMIWorkers)))
	require.True(t, handled)

	_, ok, payload, err := DecodeResult(reply)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, string(payload), "w1")
	assert.Contains(t, string(payload), "w2")
}

func TestMMIUnknownQuery(t *testing.T) {
	reg := NewRegistry()
	h := NewMMIHandler(reg)

	reply, handled := h.HandleRequest(EncodeJob(NewJob("mmi.bogus")))
	require.True(t, handled)

	_, ok, payload, err := DecodeResult(reply)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, MMICodeNotFound, string(payload))
}

func TestMMIIgnoresNonMMITarget(t *testing.T) {
	reg := NewRegistry()
	h := NewMMIHandler(reg)

	_, handled := h.HandleRequest(EncodeJob(NewJob("square", "2")))
	assert.False(t, handled)
}
