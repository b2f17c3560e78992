package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Worker is a remote execution endpoint known to the scheduler.
type Worker struct {
	ID           string    `json:"worker_id"`
	URL          string    `json:"worker_url"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Candidate is a worker paired with its load at snapshot time.
type Candidate struct {
	Worker
	Load int `json:"load"`
}

// Registry tracks registered workers, their in-flight load and the last time
// each id sent a heartbeat. Workers are never removed.
type Registry struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	order    []*Worker
	byID     map[string]*Worker
	load     map[string]int
	lastSeen map[string]time.Time
	log      *log.Entry
}

func New(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:    clock,
		byID:     make(map[string]*Worker),
		load:     make(map[string]int),
		lastSeen: make(map[string]time.Time),
		log:      log.WithField("component", "registry"),
	}
}

// Register adds the worker if its id is unknown. Re-registering an existing id
// leaves url, load and liveness untouched and reports created=false.
func (r *Registry) Register(id, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		r.log.WithField("worker_id", id).Info("worker already registered")
		return false
	}
	w := &Worker{ID: id, URL: url, RegisteredAt: r.clock.Now().UTC()}
	r.order = append(r.order, w)
	r.byID[id] = w
	r.load[id] = 0
	r.log.WithFields(log.Fields{"worker_id": id, "worker_url": url}).Info("worker registered")
	return true
}

// Get returns the registered worker with the given id.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return Worker{}, false
	}
	return *w, true
}

// List returns the registered workers in registration order.
func (r *Registry) List() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Worker, 0, len(r.order))
	for _, w := range r.order {
		out = append(out, *w)
	}
	return out
}

// Candidates returns workers and their loads from a single consistent view.
func (r *Registry) Candidates() []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Candidate, 0, len(r.order))
	for _, w := range r.order {
		out = append(out, Candidate{Worker: *w, Load: r.load[w.ID]})
	}
	return out
}

// Heartbeat stamps the liveness table for id and returns the recorded time.
// Unregistered ids are tracked too, but they never become selectable.
func (r *Registry) Heartbeat(id string) time.Time {
	now := r.clock.Now().UTC()
	r.mu.Lock()
	r.lastSeen[id] = now
	r.mu.Unlock()
	r.log.WithField("worker_id", id).Debug("heartbeat received")
	return now
}

// LastSeen returns a copy of the liveness table.
func (r *Registry) LastSeen() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]time.Time, len(r.lastSeen))
	for id, t := range r.lastSeen {
		out[id] = t
	}
	return out
}

// Stale returns, sorted, the ids whose last heartbeat is older than timeout.
// An id that never sent a heartbeat is not stale.
func (r *Registry) Stale(now time.Time, timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, seen := range r.lastSeen {
		if now.Sub(seen) > timeout {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Load returns the in-flight count for id.
func (r *Registry) Load(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load[id]
}

// Loads returns a copy of the load table.
func (r *Registry) Loads() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.load))
	for id, n := range r.load {
		out[id] = n
	}
	return out
}

// Acquire increments the load of id.
func (r *Registry) Acquire(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load[id]++
	return r.load[id]
}

// Release decrements the load of id, never below zero.
func (r *Registry) Release(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.load[id] > 0 {
		r.load[id]--
	}
	return r.load[id]
}

// Move shifts one unit of load from one worker to another.
func (r *Registry) Move(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if from == to {
		return
	}
	if r.load[from] > 0 {
		r.load[from]--
	}
	r.load[to]++
}
