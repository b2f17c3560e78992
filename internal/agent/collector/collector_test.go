package collector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type static struct {
	name string
	vals map[string]any
	err  error
}

func (s static) Name() string                     { return s.name }
func (s static) Collect() (map[string]any, error) { return s.vals, s.err }

func TestGather(t *testing.T) {
	out, err := Gather(
		static{name: "tasks", vals: map[string]any{"running": 2}},
		static{name: "host", vals: map[string]any{"id": "w1"}},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"tasks": map[string]any{"running": 2},
		"host":  map[string]any{"id": "w1"},
	}, out)

	_, err = Gather(static{name: "broken", err: errors.New("boom")})
	assert.Error(t, err)
}
