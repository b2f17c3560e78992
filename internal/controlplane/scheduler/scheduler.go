package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
)

// ErrNoWorkers is returned when a selection is attempted on an empty pool.
var ErrNoWorkers = errors.New("no workers available")

const (
	RoundRobinName  = "round_robin"
	LeastLoadedName = "least_loaded"
)

// Policy picks the worker that receives a newly submitted task.
type Policy interface {
	Name() string
	Select(candidates []registry.Candidate) (registry.Candidate, error)
}

// Parse builds the policy registered under name.
func Parse(name string) (Policy, error) {
	switch name {
	case RoundRobinName:
		return NewRoundRobin(), nil
	case LeastLoadedName:
		return NewLeastLoaded(), nil
	default:
		return nil, fmt.Errorf("unknown scheduling policy %q", name)
	}
}

// RoundRobin cycles through candidates in the order given.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (p *RoundRobin) Name() string { return RoundRobinName }

func (p *RoundRobin) Select(candidates []registry.Candidate) (registry.Candidate, error) {
	if len(candidates) == 0 {
		return registry.Candidate{}, ErrNoWorkers
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// The pool only grows; the modulo is enough to keep the cursor in range.
	selected := candidates[p.cursor%len(candidates)]
	p.cursor = (p.cursor + 1) % len(candidates)
	return selected, nil
}

// LeastLoaded picks the candidate with the smallest load. Ties go to the
// earliest candidate.
type LeastLoaded struct{}

func NewLeastLoaded() *LeastLoaded { return &LeastLoaded{} }

func (p *LeastLoaded) Name() string { return LeastLoadedName }

func (p *LeastLoaded) Select(candidates []registry.Candidate) (registry.Candidate, error) {
	if len(candidates) == 0 {
		return registry.Candidate{}, ErrNoWorkers
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Load < best.Load {
			best = c
		}
	}
	return best, nil
}
