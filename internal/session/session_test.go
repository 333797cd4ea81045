package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndDrain(t *testing.T) {
	s := New("s1", nil)

	assert.True(t, s.Send([]byte(`{"type":"pong"}`)))
	assert.True(t, s.Send([]byte(`{"type":"stats"}`)))

	frames := s.Drain(10)
	require.Len(t, frames, 2)
	assert.Equal(t, `{"type":"pong"}`, string(frames[0]))
	assert.Equal(t, `{"type":"stats"}`, string(frames[1]))
}

func TestSendAfterClose(t *testing.T) {
	s := New("s1", nil)
	s.Close()

	assert.False(t, s.Send([]byte("x")))
	assert.Empty(t, s.Drain(1))
}

func TestSendNilPayload(t *testing.T) {
	s := New("s1", nil)
	assert.False(t, s.Send(nil))
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	s := New("s1", nil)

	for i := 0; i < cap(s.send); i++ {
		require.True(t, s.Send([]byte("x")))
	}
	assert.False(t, s.Send([]byte("overflow")))
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New("s1", nil)

	assert.True(t, s.IsOpen())
	s.Close()
	s.Close()
	assert.False(t, s.IsOpen())

	select {
	case <-s.Closed():
	default:
		t.Fatal("closed channel should be signaled")
	}
}

func TestLivenessFlag(t *testing.T) {
	s := New("s1", nil)

	// Registered sessions start alive so the first probe cycle never evicts.
	assert.True(t, s.Alive())

	s.ClearAlive()
	assert.False(t, s.Alive())

	s.MarkAlive()
	assert.True(t, s.Alive())
}

func TestProbeWithoutTransport(t *testing.T) {
	s := New("s1", nil)
	assert.NoError(t, s.Probe())
}
