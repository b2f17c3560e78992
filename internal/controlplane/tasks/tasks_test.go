package tasks

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoads struct {
	mu   sync.Mutex
	load map[string]int
}

func newFakeLoads() *fakeLoads { return &fakeLoads{load: map[string]int{}} }

func (f *fakeLoads) Acquire(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.load[id]++
	return f.load[id]
}

func (f *fakeLoads) Release(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.load[id] > 0 {
		f.load[id]--
	}
	return f.load[id]
}

func (f *fakeLoads) Move(from, to string) {
	f.Release(from)
	f.Acquire(to)
}

func (f *fakeLoads) get(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load[id]
}

func TestSubmit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	loads := newFakeLoads()
	m := NewManager(clock, loads)

	task, err := m.Submit(Payload{TaskID: 7, Duration: 3}, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), task.ID)
	assert.Equal(t, StatusAssigned, task.Status)
	assert.Equal(t, "w1", task.WorkerID)
	assert.Equal(t, Payload{TaskID: 7, Duration: 3}, task.Data)
	assert.Equal(t, clock.Now().UTC(), task.StartedAt)
	assert.Nil(t, task.FinishedAt)
	assert.Equal(t, 1, loads.get("w1"))
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	loads := newFakeLoads()
	m := NewManager(clockwork.NewFakeClock(), loads)

	_, err := m.Submit(Payload{TaskID: 1, Duration: 1}, "w1")
	require.NoError(t, err)
	_, err = m.Submit(Payload{TaskID: 1, Duration: 9}, "w2")
	assert.ErrorIs(t, err, ErrDuplicateTask)

	got, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "w1", got.WorkerID)
	assert.Equal(t, 1, got.Data.Duration)
	assert.Equal(t, 0, loads.get("w2"))
}

func TestCompleteConservesLoad(t *testing.T) {
	clock := clockwork.NewFakeClock()
	loads := newFakeLoads()
	m := NewManager(clock, loads)

	_, err := m.Submit(Payload{TaskID: 1, Duration: 2}, "w1")
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	task, ok := m.Complete(1)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, task.Status)
	require.NotNil(t, task.FinishedAt)
	assert.Equal(t, 2*time.Second, task.FinishedAt.Sub(task.StartedAt))
	assert.Equal(t, 0, loads.get("w1"))

	// A late duplicate completion must not release twice.
	_, ok = m.Complete(1)
	assert.False(t, ok)
	assert.Equal(t, 0, loads.get("w1"))

	_, ok = m.Complete(404)
	assert.False(t, ok)
}

func TestReassign(t *testing.T) {
	clock := clockwork.NewFakeClock()
	loads := newFakeLoads()
	m := NewManager(clock, loads)

	_, err := m.Submit(Payload{TaskID: 1, Duration: 5}, "w2")
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	task, err := m.Reassign(1, "w1")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, task.Status)
	assert.Equal(t, "w1", task.WorkerID)
	assert.Equal(t, clock.Now().UTC(), task.StartedAt)
	assert.Equal(t, 1, task.Reassignments)
	assert.Equal(t, 0, loads.get("w2"))
	assert.Equal(t, 1, loads.get("w1"))

	_, err = m.Reassign(99, "w1")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, ok := m.Complete(1)
	require.True(t, ok)
	_, err = m.Reassign(1, "w2")
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestAssignedToAndSnapshot(t *testing.T) {
	m := NewManager(clockwork.NewFakeClock(), nil)
	for _, id := range []int64{5, 3, 9, 1} {
		worker := "w1"
		if id == 9 {
			worker = "w2"
		}
		_, err := m.Submit(Payload{TaskID: id}, worker)
		require.NoError(t, err)
	}
	m.Complete(3)

	var ids []int64
	for _, task := range m.AssignedTo("w1") {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []int64{1, 5}, ids)

	snap := m.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, int64(1), snap[0].ID)
	assert.Equal(t, int64(9), snap[3].ID)

	// Snapshots are copies.
	snap[1].FinishedAt = nil
	got, _ := m.Get(3)
	assert.NotNil(t, got.FinishedAt)
}

func TestConcurrentSubmitAndComplete(t *testing.T) {
	loads := newFakeLoads()
	m := NewManager(clockwork.NewRealClock(), loads)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := m.Submit(Payload{TaskID: id}, "w1")
			assert.NoError(t, err)
			m.Complete(id)
			m.Complete(id)
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, 0, loads.get("w1"))
	assert.Len(t, m.Snapshot(), 100)
}
