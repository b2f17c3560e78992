package executor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
)

// Executor defines a unit of work the agent can execute for a task.
type Executor interface {
	Name() string
	Run(ctx context.Context, p tasks.Payload) error
}

// Sleep simulates work by waiting Duration units.
type Sleep struct {
	clock clockwork.Clock
	unit  time.Duration
}

func NewSleep(clock clockwork.Clock, unit time.Duration) *Sleep {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sleep{clock: clock, unit: unit}
}

func (s *Sleep) Name() string { return "sleep" }

// Run returns early with ctx.Err() when ctx is cancelled.
func (s *Sleep) Run(ctx context.Context, p tasks.Payload) error {
	d := time.Duration(p.Duration) * s.unit
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
