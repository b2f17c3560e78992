package registry

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	require.True(t, r.Register("w1", "http://w1"))
	require.True(t, r.Register("w2", "http://w2"))
	r.Acquire("w1")
	r.Heartbeat("w1")
	seen := r.LastSeen()["w1"]

	clock.Advance(time.Second)
	assert.False(t, r.Register("w1", "http://elsewhere"))

	workers := r.List()
	require.Len(t, workers, 2)
	assert.Equal(t, "w1", workers[0].ID)
	assert.Equal(t, "http://w1", workers[0].URL)
	assert.Equal(t, "w2", workers[1].ID)
	assert.Equal(t, 1, r.Load("w1"))
	assert.Equal(t, seen, r.LastSeen()["w1"])
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	r := New(clockwork.NewFakeClock())
	ids := []string{"c", "a", "b", "a", "c", "d"}
	for _, id := range ids {
		r.Register(id, "http://"+id)
	}
	var got []string
	for _, w := range r.List() {
		got = append(got, w.ID)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, got)
}

func TestHeartbeatFromUnknownWorker(t *testing.T) {
	r := New(clockwork.NewFakeClock())
	r.Heartbeat("ghost")

	_, ok := r.Get("ghost")
	assert.False(t, ok)
	assert.Empty(t, r.List())
	assert.Contains(t, r.LastSeen(), "ghost")
}

func TestStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)
	r.Register("w1", "http://w1")
	r.Register("w2", "http://w2")
	r.Register("w3", "http://w3") // never heartbeats

	r.Heartbeat("w1")
	r.Heartbeat("w2")
	clock.Advance(5 * time.Second)
	r.Heartbeat("w1")

	assert.Empty(t, r.Stale(clock.Now(), 8*time.Second))

	clock.Advance(3 * time.Second)
	// w2 is exactly 8s old: not beyond the timeout yet.
	assert.Empty(t, r.Stale(clock.Now(), 8*time.Second))

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"w2"}, r.Stale(clock.Now(), 8*time.Second))

	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{"w1", "w2"}, r.Stale(clock.Now(), 8*time.Second))
}

func TestLoadNeverNegative(t *testing.T) {
	r := New(clockwork.NewFakeClock())
	r.Register("w1", "http://w1")
	r.Register("w2", "http://w2")

	assert.Equal(t, 0, r.Release("w1"))
	assert.Equal(t, 1, r.Acquire("w1"))
	r.Move("w1", "w2")
	r.Move("w1", "w2")
	assert.Equal(t, map[string]int{"w1": 0, "w2": 2}, r.Loads())

	c := r.Candidates()
	require.Len(t, c, 2)
	assert.Equal(t, 0, c[0].Load)
	assert.Equal(t, 2, c[1].Load)
}
