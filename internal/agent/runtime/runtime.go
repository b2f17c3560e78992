// Package runtime runs a simulated worker: it registers with the scheduler,
// heartbeats, executes dispatched tasks and reports their completion.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/VerteraIO/dispatch/internal/agent/collector"
	"github.com/VerteraIO/dispatch/internal/agent/executor"
	"github.com/VerteraIO/dispatch/internal/controlplane/dispatch"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
)

// Scheduler is the worker's view of the scheduler, over HTTP or gRPC.
type Scheduler interface {
	Register(ctx context.Context, workerID, workerURL string) error
	Heartbeat(ctx context.Context, workerID string) error
	TaskComplete(ctx context.Context, taskID int64) error
}

type Config struct {
	ID                string
	AdvertiseURL      string
	HeartbeatInterval time.Duration
	// RetryInterval is the first backoff step for scheduler calls.
	RetryInterval time.Duration
}

type Agent struct {
	cfg   Config
	clock clockwork.Clock
	sched Scheduler
	exec  executor.Executor
	log   *log.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	running   map[int64]tasks.Payload
	completed int
	failed    int
}

var _ collector.Collector = (*Agent)(nil)

func New(cfg Config, sched Scheduler, exec executor.Executor, clock clockwork.Clock) *Agent {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = backoff.DefaultInitialInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{
		cfg:     cfg,
		clock:   clock,
		sched:   sched,
		exec:    exec,
		log:     log.WithFields(log.Fields{"component": "agent", "worker_id": cfg.ID}),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[int64]tasks.Payload),
	}
}

func (a *Agent) newBackOff(ctx context.Context, maxRetries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.RetryInterval
	b.MaxElapsedTime = 0
	var bo backoff.BackOff = b
	if maxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, maxRetries)
	}
	return backoff.WithContext(bo, ctx)
}

// Register announces the worker, retrying until it succeeds or ctx is done.
func (a *Agent) Register(ctx context.Context) error {
	op := func() error {
		return a.sched.Register(ctx, a.cfg.ID, a.cfg.AdvertiseURL)
	}
	notify := func(err error, next time.Duration) {
		a.log.WithError(err).WithField("retry_in", next).Warn("registration failed")
	}
	if err := backoff.RetryNotify(op, a.newBackOff(ctx, 0), notify); err != nil {
		return err
	}
	a.log.WithField("url", a.cfg.AdvertiseURL).Info("registered with scheduler")
	return nil
}

// Run registers, then heartbeats until ctx is done. Running tasks are
// cancelled on return.
func (a *Agent) Run(ctx context.Context) error {
	defer a.Stop()
	if err := a.Register(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := a.clock.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	a.heartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			a.heartbeat(ctx)
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) {
	if err := a.sched.Heartbeat(ctx, a.cfg.ID); err != nil && ctx.Err() == nil {
		a.log.WithError(err).Warn("heartbeat failed")
	}
}

// Stop cancels running tasks and waits for them.
func (a *Agent) Stop() {
	a.cancel()
	a.wg.Wait()
}

// Execute starts p in the background.
func (a *Agent) Execute(p tasks.Payload) {
	a.mu.Lock()
	a.running[p.TaskID] = p
	a.mu.Unlock()

	a.wg.Add(1)
	go a.execute(p)
}

func (a *Agent) execute(p tasks.Payload) {
	defer a.wg.Done()
	entry := a.log.WithFields(log.Fields{"task_id": p.TaskID, "duration": p.Duration})
	entry.Info("executing task")

	err := a.exec.Run(a.ctx, p)

	a.mu.Lock()
	delete(a.running, p.TaskID)
	if err != nil {
		a.failed++
	} else {
		a.completed++
	}
	a.mu.Unlock()

	if err != nil {
		entry.WithError(err).Warn("task did not finish")
		return
	}
	op := func() error { return a.sched.TaskComplete(a.ctx, p.TaskID) }
	if err := backoff.Retry(op, a.newBackOff(a.ctx, 3)); err != nil {
		entry.WithError(err).Error("failed to report completion")
		return
	}
	entry.Info("task completed")
}

// Wait blocks until every started task has finished and reported.
func (a *Agent) Wait() { a.wg.Wait() }

func (a *Agent) Name() string { return "tasks" }

func (a *Agent) Collect() (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	running := make([]tasks.Payload, 0, len(a.running))
	for _, p := range a.running {
		running = append(running, p)
	}
	sort.Slice(running, func(i, j int) bool { return running[i].TaskID < running[j].TaskID })
	return map[string]any{
		"worker_id": a.cfg.ID,
		"running":   running,
		"completed": a.completed,
		"failed":    a.failed,
	}, nil
}

// Handler serves the worker's task endpoint.
func (a *Agent) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post(dispatch.ExecuteTaskPath, a.handleExecute)
	r.Get("/status", a.handleStatus)
	return r
}

func (a *Agent) handleExecute(w http.ResponseWriter, r *http.Request) {
	var p tasks.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if p.Duration < 0 {
		http.Error(w, "duration must not be negative", http.StatusBadRequest)
		return
	}
	a.Execute(p)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("Task %d accepted by %s", p.TaskID, a.cfg.ID),
	})
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := collector.Gather(a)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
