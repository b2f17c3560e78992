package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
	"github.com/VerteraIO/dispatch/internal/controlplane/scheduler"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
	"github.com/VerteraIO/dispatch/internal/metrics"
	"github.com/VerteraIO/dispatch/internal/tracing"
)

// Sender delivers a task payload to a worker. A nil error means the worker
// accepted the task, not that it finished.
type Sender interface {
	ExecuteTask(ctx context.Context, w registry.Worker, p tasks.Payload) error
}

// Dispatcher selects a worker for each submission, records it and sends the
// payload on a detached goroutine.
type Dispatcher struct {
	// mu makes select, load acquisition and ledger write one step, so
	// concurrent submissions observe each other's load.
	mu       sync.Mutex
	registry *registry.Registry
	ledger   *tasks.Manager
	policy   scheduler.Policy
	sender   Sender
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *log.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(
	reg *registry.Registry,
	ledger *tasks.Manager,
	policy scheduler.Policy,
	sender Sender,
	timeout time.Duration,
	m *metrics.Metrics,
) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: reg,
		ledger:   ledger,
		policy:   policy,
		sender:   sender,
		timeout:  timeout,
		metrics:  m,
		log:      log.WithField("component", "dispatch"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Policy returns the active placement policy.
func (d *Dispatcher) Policy() scheduler.Policy { return d.policy }

// Dispatch assigns p to a worker and returns without waiting for delivery.
// Delivery failures are logged and left for the reconciler to recover.
func (d *Dispatcher) Dispatch(p tasks.Payload) (registry.Worker, error) {
	d.mu.Lock()
	if d.ledger.Exists(p.TaskID) {
		d.mu.Unlock()
		return registry.Worker{}, tasks.ErrDuplicateTask
	}
	selected, err := d.policy.Select(d.registry.Candidates())
	if err != nil {
		d.mu.Unlock()
		return registry.Worker{}, err
	}
	if _, err := d.ledger.Submit(p, selected.ID); err != nil {
		d.mu.Unlock()
		return registry.Worker{}, err
	}
	d.mu.Unlock()

	d.metrics.TaskDispatched(selected.ID)
	d.log.WithFields(log.Fields{
		"task_id":   p.TaskID,
		"worker_id": selected.ID,
		"policy":    d.policy.Name(),
	}).Info("task assigned")

	d.wg.Add(1)
	go d.send(selected.Worker, p)
	return selected.Worker, nil
}

func (d *Dispatcher) send(w registry.Worker, p tasks.Payload) {
	defer d.wg.Done()
	entry := d.log.WithFields(log.Fields{
		"task_id":   p.TaskID,
		"worker_id": w.ID,
		"attempt":   uuid.NewString(),
	})
	defer func() {
		if rec := recover(); rec != nil {
			entry.Errorf("task send crashed: %v", rec)
		}
	}()

	ctx, cancel := d.sendContext()
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "dispatch.send", map[string]string{
		"worker.id": w.ID,
		"task.id":   strconv.FormatInt(p.TaskID, 10),
	})
	err := d.sender.ExecuteTask(ctx, w, p)
	span.End(err)
	if err != nil {
		d.metrics.SendFailed(metrics.PhaseDispatch)
		entry.WithError(err).Error("failed to send task")
		return
	}
	entry.Debug("task delivered")
}

func (d *Dispatcher) sendContext() (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(d.ctx, d.timeout)
	}
	return context.WithCancel(d.ctx)
}

// Wait blocks until every in-flight send has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Close cancels in-flight sends and waits for them.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
