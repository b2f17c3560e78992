package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const promNamespace = "dispatch"

// Send phases recorded on SendFailures.
const (
	PhaseDispatch = "dispatch"
	PhaseForward  = "forward"
)

// LoadSource exposes the current per-worker in-flight counts.
type LoadSource interface {
	Loads() map[string]int
}

// Metrics holds the scheduler's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Dispatched   *prom.CounterVec
	Completed    *prom.CounterVec
	Reassigned   *prom.CounterVec
	SendFailures *prom.CounterVec
	StaleWorkers prom.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prom.Registerer) *Metrics {
	m := &Metrics{
		Dispatched: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "tasks_dispatched_total",
			Help:      "tasks handed to a worker on submission",
		}, []string{"worker"}),
		Completed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "tasks_completed_total",
			Help:      "task completions reported by workers",
		}, []string{"worker"}),
		Reassigned: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "tasks_reassigned_total",
			Help:      "tasks moved off a stale worker",
		}, []string{"from", "to"}),
		SendFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "send_failures_total",
			Help:      "failed deliveries of a task to a worker",
		}, []string{"phase"}),
		StaleWorkers: prom.NewGauge(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "stale_workers",
			Help:      "workers past the heartbeat timeout in the last monitor cycle",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Dispatched, m.Completed, m.Reassigned, m.SendFailures, m.StaleWorkers)
	}
	return m
}

func (m *Metrics) TaskDispatched(worker string) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(worker).Inc()
}

func (m *Metrics) TaskCompleted(worker string) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(worker).Inc()
}

func (m *Metrics) TaskReassigned(from, to string) {
	if m == nil {
		return
	}
	m.Reassigned.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SendFailed(phase string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) SetStaleWorkers(n int) {
	if m == nil {
		return
	}
	m.StaleWorkers.Set(float64(n))
}

var loadDesc = prom.NewDesc(
	prom.BuildFQName(promNamespace, "", "worker_load"),
	"tasks currently assigned to a worker",
	[]string{"worker"}, nil,
)

// loadCollector reads the load table at scrape time.
type loadCollector struct {
	src LoadSource
}

// NewLoadCollector returns a collector exporting src as dispatch_worker_load.
func NewLoadCollector(src LoadSource) prom.Collector {
	return &loadCollector{src: src}
}

func (c *loadCollector) Describe(ch chan<- *prom.Desc) { ch <- loadDesc }

func (c *loadCollector) Collect(ch chan<- prom.Metric) {
	for worker, n := range c.src.Loads() {
		ch <- prom.MustNewConstMetric(loadDesc, prom.GaugeValue, float64(n), worker)
	}
}
