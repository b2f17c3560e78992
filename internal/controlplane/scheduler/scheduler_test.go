package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
)

func candidates(loads ...int) []registry.Candidate {
	out := make([]registry.Candidate, 0, len(loads))
	for i, l := range loads {
		id := string(rune('a' + i))
		out = append(out, registry.Candidate{Worker: registry.Worker{ID: id}, Load: l})
	}
	return out
}

func TestParse(t *testing.T) {
	p, err := Parse("round_robin")
	require.NoError(t, err)
	assert.Equal(t, RoundRobinName, p.Name())

	p, err = Parse("least_loaded")
	require.NoError(t, err)
	assert.Equal(t, LeastLoadedName, p.Name())

	_, err = Parse("random")
	assert.Error(t, err)
}

func TestEmptyPool(t *testing.T) {
	for _, p := range []Policy{NewRoundRobin(), NewLeastLoaded()} {
		_, err := p.Select(nil)
		assert.ErrorIs(t, err, ErrNoWorkers, p.Name())
	}
}

func TestRoundRobinVisitsEachWorkerOncePerCycle(t *testing.T) {
	p := NewRoundRobin()
	pool := candidates(0, 0, 0, 0)
	for cycle := 0; cycle < 3; cycle++ {
		seen := map[string]int{}
		for i := 0; i < len(pool); i++ {
			c, err := p.Select(pool)
			require.NoError(t, err)
			seen[c.ID]++
		}
		assert.Len(t, seen, len(pool))
		for id, n := range seen {
			assert.Equal(t, 1, n, "worker %s in cycle %d", id, cycle)
		}
	}
}

func TestRoundRobinIgnoresLoad(t *testing.T) {
	p := NewRoundRobin()
	pool := candidates(9, 0)
	var got []string
	for i := 0; i < 3; i++ {
		c, err := p.Select(pool)
		require.NoError(t, err)
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestRoundRobinPoolGrowth(t *testing.T) {
	p := NewRoundRobin()
	c, _ := p.Select(candidates(0))
	assert.Equal(t, "a", c.ID)
	c, _ = p.Select(candidates(0, 0))
	assert.Equal(t, "a", c.ID)
	c, _ = p.Select(candidates(0, 0))
	assert.Equal(t, "b", c.ID)
}

func TestLeastLoaded(t *testing.T) {
	tests := []struct {
		name  string
		loads []int
		want  string
	}{
		{name: "single", loads: []int{3}, want: "a"},
		{name: "minimum in middle", loads: []int{3, 1, 2}, want: "b"},
		{name: "tie goes to earliest", loads: []int{2, 1, 1, 5}, want: "b"},
		{name: "all equal", loads: []int{0, 0, 0}, want: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := candidates(tt.loads...)
			c, err := NewLeastLoaded().Select(pool)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.ID)
			for _, other := range pool {
				assert.LessOrEqual(t, c.Load, other.Load)
			}
		})
	}
}
