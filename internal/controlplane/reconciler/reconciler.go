package reconciler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/VerteraIO/dispatch/internal/controlplane/dispatch"
	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
	"github.com/VerteraIO/dispatch/internal/metrics"
	"github.com/VerteraIO/dispatch/internal/tracing"
)

// Config controls the liveness loop.
type Config struct {
	Interval     time.Duration
	StaleTimeout time.Duration
	// MaxReassignments caps how often one task may be moved. Zero means no cap.
	MaxReassignments int
	// SendTimeout bounds each forward. Zero means no timeout.
	SendTimeout time.Duration
}

// Result summarises one reconcile cycle.
type Result struct {
	Stale      []string
	Reassigned int
	Stranded   int
}

// Reconciler moves tasks off workers whose heartbeats have gone stale.
// Only the Run goroutine calls Reconcile, so its own fields need no lock.
type Reconciler struct {
	cfg      Config
	clock    clockwork.Clock
	registry *registry.Registry
	ledger   *tasks.Manager
	sender   dispatch.Sender
	metrics  *metrics.Metrics
	log      *log.Entry

	dead   map[string]bool
	capped map[int64]bool
}

func New(
	cfg Config,
	clock clockwork.Clock,
	reg *registry.Registry,
	ledger *tasks.Manager,
	sender dispatch.Sender,
	m *metrics.Metrics,
) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{
		cfg:      cfg,
		clock:    clock,
		registry: reg,
		ledger:   ledger,
		sender:   sender,
		metrics:  m,
		log:      log.WithField("component", "reconciler"),
		dead:     make(map[string]bool),
		capped:   make(map[int64]bool),
	}
}

// Run reconciles every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.WithFields(log.Fields{
		"interval":      r.cfg.Interval,
		"stale_timeout": r.cfg.StaleTimeout,
	}).Info("liveness monitor started")
	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("liveness monitor stopped")
			return nil
		case <-ticker.Chan():
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs a single cycle.
func (r *Reconciler) Reconcile(ctx context.Context) Result {
	now := r.clock.Now()
	stale := r.registry.Stale(now, r.cfg.StaleTimeout)
	r.metrics.SetStaleWorkers(len(stale))
	res := Result{Stale: stale}

	staleSet := make(map[string]bool, len(stale))
	for _, id := range stale {
		staleSet[id] = true
	}
	for id := range r.dead {
		if !staleSet[id] {
			delete(r.dead, id)
			r.log.WithField("worker_id", id).Info("worker heartbeating again")
		}
	}

	for _, id := range stale {
		if ctx.Err() != nil {
			return res
		}
		orphans := r.ledger.AssignedTo(id)
		entry := r.log.WithFields(log.Fields{"worker_id": id, "assigned": len(orphans)})
		if !r.dead[id] {
			r.dead[id] = true
			entry.Warn("worker is dead")
		} else {
			entry.Debug("worker still dead")
		}
		for _, t := range orphans {
			if r.reassign(ctx, t, staleSet) {
				res.Reassigned++
			} else {
				res.Stranded++
			}
		}
	}
	return res
}

// reassign forwards t to the first live worker that accepts it.
func (r *Reconciler) reassign(ctx context.Context, t tasks.Task, stale map[string]bool) bool {
	entry := r.log.WithFields(log.Fields{"task_id": t.ID, "from": t.WorkerID})
	if r.cfg.MaxReassignments > 0 && t.Reassignments >= r.cfg.MaxReassignments {
		if !r.capped[t.ID] {
			r.capped[t.ID] = true
			entry.WithField("reassignments", t.Reassignments).Error("task reached reassignment cap, leaving it on dead worker")
		}
		return false
	}

	entry.Info("reassigning task")
	for _, w := range r.registry.List() {
		if w.ID == t.WorkerID || stale[w.ID] {
			continue
		}
		if err := r.forward(ctx, w, t.Data); err != nil {
			r.metrics.SendFailed(metrics.PhaseForward)
			entry.WithError(err).WithField("to", w.ID).Warn("forward failed, trying next worker")
			continue
		}
		if _, err := r.ledger.Reassign(t.ID, w.ID); err != nil {
			if errors.Is(err, tasks.ErrNotAssigned) {
				entry.WithField("to", w.ID).Warn("task completed during forward, it may run twice")
			} else {
				entry.WithError(err).Error("failed to record reassignment")
			}
			return false
		}
		r.metrics.TaskReassigned(t.WorkerID, w.ID)
		entry.WithField("to", w.ID).Info("task reassigned")
		return true
	}
	entry.Warn("no live worker accepted task, retrying next cycle")
	return false
}

func (r *Reconciler) forward(ctx context.Context, w registry.Worker, p tasks.Payload) error {
	if r.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SendTimeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "reconciler.forward", map[string]string{
		"worker.id": w.ID,
		"task.id":   strconv.FormatInt(p.TaskID, 10),
	})
	err := r.sender.ExecuteTask(ctx, w, p)
	span.End(err)
	return err
}
