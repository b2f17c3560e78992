package tasks

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrDuplicateTask = errors.New("task id already submitted")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotAssigned   = errors.New("task is not assigned")
)

type Status string

const (
	StatusAssigned  Status = "ASSIGNED"
	StatusCompleted Status = "COMPLETED"
)

// Payload is the unit of work forwarded to a worker unchanged.
type Payload struct {
	TaskID   int64 `json:"task_id"`
	Duration int   `json:"duration"`
}

type Task struct {
	ID            int64      `json:"task_id"`
	Status        Status     `json:"status"`
	WorkerID      string     `json:"worker_id"`
	Data          Payload    `json:"data"`
	Reassignments int        `json:"reassignments"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// LoadTracker keeps per-worker in-flight counts in step with ledger changes.
// It is called with the ledger lock held and must not call back into the ledger.
type LoadTracker interface {
	Acquire(workerID string) int
	Release(workerID string) int
	Move(from, to string)
}

type Manager struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	loads LoadTracker
	tasks map[int64]*Task
}

func NewManager(clock clockwork.Clock, loads LoadTracker) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{clock: clock, loads: loads, tasks: make(map[int64]*Task)}
}

// Exists reports whether id was ever submitted.
func (m *Manager) Exists(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tasks[id]
	return ok
}

// Submit records p as assigned to workerID and acquires one unit of load on it.
func (m *Manager) Submit(p Payload, workerID string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[p.TaskID]; ok {
		return Task{}, ErrDuplicateTask
	}
	now := m.clock.Now().UTC()
	t := &Task{
		ID:          p.TaskID,
		Status:      StatusAssigned,
		WorkerID:    workerID,
		Data:        p,
		SubmittedAt: now,
		StartedAt:   now,
	}
	m.tasks[p.TaskID] = t
	if m.loads != nil {
		m.loads.Acquire(workerID)
	}
	return *t, nil
}

// Complete marks an assigned task completed and releases its worker's load.
// Unknown or already completed ids are ignored and report false.
func (m *Manager) Complete(id int64) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusAssigned {
		return Task{}, false
	}
	now := m.clock.Now().UTC()
	t.Status = StatusCompleted
	t.FinishedAt = &now
	if m.loads != nil {
		m.loads.Release(t.WorkerID)
	}
	return *t, true
}

// Reassign moves an assigned task to workerID and restarts its timing.
func (m *Manager) Reassign(id int64, workerID string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if t.Status != StatusAssigned {
		return *t, ErrNotAssigned
	}
	previous := t.WorkerID
	t.WorkerID = workerID
	t.StartedAt = m.clock.Now().UTC()
	t.FinishedAt = nil
	t.Reassignments++
	if m.loads != nil {
		m.loads.Move(previous, workerID)
	}
	return *t, nil
}

func (m *Manager) Get(id int64) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return copyTask(t), true
}

// AssignedTo lists the tasks still assigned to workerID, ordered by id.
func (m *Manager) AssignedTo(workerID string) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Task
	for _, t := range m.tasks {
		if t.Status == StatusAssigned && t.WorkerID == workerID {
			out = append(out, copyTask(t))
		}
	}
	sortByID(out)
	return out
}

// Snapshot returns a copy of every task, ordered by id.
func (m *Manager) Snapshot() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, copyTask(t))
	}
	sortByID(out)
	return out
}

func copyTask(t *Task) Task {
	c := *t
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		c.FinishedAt = &f
	}
	return c
}

func sortByID(ts []Task) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
