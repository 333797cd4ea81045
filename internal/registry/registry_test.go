package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelwall/gateway-server-go/internal/session"
)

func TestAddRemove(t *testing.T) {
	r := New()
	s := session.New("s1", nil)

	r.Add(s)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, s, got)

	r.Remove("s1")
	assert.Equal(t, 0, r.Len())

	_, ok = r.Get("s1")
	assert.False(t, ok)
}

func TestSetDisplayName(t *testing.T) {
	t.Run("stores a clean name", func(t *testing.T) {
		r := New()
		s := session.New("s1", nil)
		r.Add(s)

		assert.True(t, r.SetDisplayName("s1", "alice"))
		assert.Equal(t, "alice", s.DisplayName())
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		r := New()
		s := session.New("s1", nil)
		r.Add(s)

		assert.True(t, r.SetDisplayName("s1", "  bob  "))
		assert.Equal(t, "bob", s.DisplayName())
	})

	t.Run("strips control characters", func(t *testing.T) {
		r := New()
		s := session.New("s1", nil)
		r.Add(s)

		assert.True(t, r.SetDisplayName("s1", "ev\x00il\nname"))
		assert.Equal(t, "evilname", s.DisplayName())
	})

	t.Run("truncates long names", func(t *testing.T) {
		r := New()
		s := session.New("s1", nil)
		r.Add(s)

		assert.True(t, r.SetDisplayName("s1", strings.Repeat("x", 100)))
		assert.Len(t, s.DisplayName(), 32)
	})

	t.Run("rejects empty input leaving name unset", func(t *testing.T) {
		r := New()
		s := session.New("s1", nil)
		r.Add(s)

		assert.False(t, r.SetDisplayName("s1", ""))
		assert.False(t, r.SetDisplayName("s1", "   "))
		assert.False(t, r.SetDisplayName("s1", "\x01\x02"))
		assert.Equal(t, "", s.DisplayName())
	})

	t.Run("rejects unknown session", func(t *testing.T) {
		r := New()
		assert.False(t, r.SetDisplayName("nope", "alice"))
	})
}

func TestSnapshot(t *testing.T) {
	r := New()

	s1 := session.New("s1", nil)
	s2 := session.New("s2", nil)
	s3 := session.New("s3", nil)
	s4 := session.New("s4", nil)
	r.Add(s1)
	r.Add(s2)
	r.Add(s3)
	r.Add(s4)

	r.SetDisplayName("s1", "alice")
	r.SetDisplayName("s2", "bob")
	r.SetDisplayName("s3", "alice") // duplicate name, counted once

	count, names := r.Snapshot()
	assert.Equal(t, 4, count)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestForEachLive(t *testing.T) {
	r := New()

	open := session.New("open", nil)
	closed := session.New("closed", nil)
	r.Add(open)
	r.Add(closed)
	closed.Close()

	var visited []string
	r.ForEachLive(func(s *session.Session) {
		visited = append(visited, s.ID)
	})

	assert.Equal(t, []string{"open"}, visited)
}

func TestForEach(t *testing.T) {
	r := New()

	open := session.New("open", nil)
	closed := session.New("closed", nil)
	r.Add(open)
	r.Add(closed)
	closed.Close()

	seen := make(map[string]bool)
	r.ForEach(func(s *session.Session) {
		seen[s.ID] = true
	})

	assert.True(t, seen["open"])
	assert.True(t, seen["closed"])
}
