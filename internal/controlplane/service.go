// Package controlplane wires the scheduler components into one Service that
// every transport shares.
package controlplane

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/VerteraIO/dispatch/internal/config"
	"github.com/VerteraIO/dispatch/internal/controlplane/dispatch"
	"github.com/VerteraIO/dispatch/internal/controlplane/reconciler"
	"github.com/VerteraIO/dispatch/internal/controlplane/registry"
	"github.com/VerteraIO/dispatch/internal/controlplane/results"
	"github.com/VerteraIO/dispatch/internal/controlplane/scheduler"
	"github.com/VerteraIO/dispatch/internal/controlplane/tasks"
	"github.com/VerteraIO/dispatch/internal/metrics"
)

var (
	ErrInvalidWorker = errors.New("worker_id and worker_url are required")
	ErrInvalidTask   = errors.New("duration must not be negative")
)

// Status is the debugging view of the whole scheduler.
type Status struct {
	Policy   string               `json:"policy"`
	Workers  []string             `json:"workers"`
	LastSeen map[string]time.Time `json:"last_seen"`
	Tasks    map[int64]tasks.Task `json:"tasks"`
	Load     map[string]int       `json:"load"`
}

type Option func(*options)

type options struct {
	clock    clockwork.Clock
	sender   dispatch.Sender
	registry *prom.Registry
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithSender replaces the HTTP sender used to reach workers.
func WithSender(s dispatch.Sender) Option { return func(o *options) { o.sender = s } }

// WithRegistry registers metrics on r instead of a fresh registry.
func WithRegistry(r *prom.Registry) Option { return func(o *options) { o.registry = r } }

// Service owns the registry, the ledger and the loops that act on them.
type Service struct {
	clock      clockwork.Clock
	registry   *registry.Registry
	ledger     *tasks.Manager
	dispatcher *dispatch.Dispatcher
	reconciler *reconciler.Reconciler
	metrics    *metrics.Metrics
	prom       *prom.Registry
	log        *log.Entry
}

func New(cfg config.Scheduler, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.sender == nil {
		o.sender = dispatch.NewHTTPSender(nil)
	}
	if o.registry == nil {
		o.registry = prom.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector())
	}

	policy, err := scheduler.Parse(cfg.Policy)
	if err != nil {
		return nil, err
	}

	reg := registry.New(o.clock)
	ledger := tasks.NewManager(o.clock, reg)
	m := metrics.New(o.registry)
	o.registry.MustRegister(metrics.NewLoadCollector(reg))

	s := &Service{
		clock:      o.clock,
		registry:   reg,
		ledger:     ledger,
		dispatcher: dispatch.NewDispatcher(reg, ledger, policy, o.sender, cfg.Dispatch.SendTimeout, m),
		reconciler: reconciler.New(reconciler.Config{
			Interval:         cfg.Monitor.Interval,
			StaleTimeout:     cfg.Monitor.StaleTimeout,
			MaxReassignments: cfg.Monitor.MaxReassignments,
			SendTimeout:      cfg.Dispatch.SendTimeout,
		}, o.clock, reg, ledger, o.sender, m),
		metrics: m,
		prom:    o.registry,
		log:     log.WithField("component", "controlplane"),
	}
	s.log.WithField("policy", policy.Name()).Info("scheduler initialized")
	return s, nil
}

// Run drives the liveness monitor until ctx is done, then cancels in-flight sends.
func (s *Service) Run(ctx context.Context) error {
	defer s.dispatcher.Close()
	return s.reconciler.Run(ctx)
}

// Gatherer exposes the metrics registry.
func (s *Service) Gatherer() prom.Gatherer { return s.prom }

func (s *Service) Policy() string { return s.dispatcher.Policy().Name() }

// RegisterWorker adds a worker. Re-registering a known id changes nothing.
func (s *Service) RegisterWorker(id, url string) error {
	if id == "" || url == "" {
		return ErrInvalidWorker
	}
	s.registry.Register(id, url)
	return nil
}

// SubmitTask places a task and returns the chosen worker.
func (s *Service) SubmitTask(p tasks.Payload) (registry.Worker, error) {
	if p.Duration < 0 {
		return registry.Worker{}, ErrInvalidTask
	}
	return s.dispatcher.Dispatch(p)
}

// TaskComplete marks a task finished. Unknown and repeated ids are ignored.
func (s *Service) TaskComplete(id int64) {
	t, ok := s.ledger.Complete(id)
	if !ok {
		s.log.WithField("task_id", id).Debug("completion for unknown or finished task ignored")
		return
	}
	s.metrics.TaskCompleted(t.WorkerID)
	s.log.WithFields(log.Fields{"task_id": id, "worker_id": t.WorkerID}).Info("task completed")
}

// Heartbeat records liveness for id, registered or not.
func (s *Service) Heartbeat(id string) {
	s.registry.Heartbeat(id)
}

func (s *Service) Status() Status {
	out := Status{
		Policy:   s.Policy(),
		Workers:  []string{},
		LastSeen: s.registry.LastSeen(),
		Tasks:    map[int64]tasks.Task{},
		Load:     s.registry.Loads(),
	}
	for _, w := range s.registry.List() {
		out.Workers = append(out.Workers, w.ID)
	}
	for _, t := range s.ledger.Snapshot() {
		out.Tasks[t.ID] = t
	}
	return out
}

func (s *Service) GetTask(id int64) (tasks.Task, error) {
	t, ok := s.ledger.Get(id)
	if !ok {
		return tasks.Task{}, tasks.ErrTaskNotFound
	}
	return t, nil
}

func (s *Service) ExperimentResults() results.Report {
	return results.Export(s.Policy(), s.ledger.Snapshot())
}

func (s *Service) ExperimentSummary() results.Summary {
	return results.Summarize(s.ExperimentResults())
}

// Reconcile runs one liveness cycle outside the Run loop.
func (s *Service) Reconcile(ctx context.Context) reconciler.Result {
	return s.reconciler.Reconcile(ctx)
}

// WaitSends blocks until every in-flight send has returned.
func (s *Service) WaitSends() { s.dispatcher.Wait() }
