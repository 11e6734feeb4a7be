package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Settlement reasons, used as the "reason" label.
const (
	ReasonOK          = "ok"
	ReasonUserError   = "user_error"
	ReasonValidation  = "validation"
	ReasonTimeout     = "timeout"
	ReasonCrash       = "crash"
	ReasonSpawnFailed = "spawn_failed"
	ReasonTerminated  = "terminated"
	ReasonClosed      = "closed"
	ReasonIdle        = "idle"
)

// Metrics holds the Prometheus collectors of one manager
type Metrics struct {
	JobsSubmitted prometheus.Counter
	JobsSettled   *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	QueueLength   prometheus.Gauge

	UnitSpawns prometheus.Counter
	UnitExits  *prometheus.CounterVec
	UnitState  prometheus.Gauge

	latency *LatencyWindow

	mu       sync.Mutex
	snapshot Snapshot
}

// Snapshot holds counter values for Stats()
type Snapshot struct {
	Submitted int64
	Outputs   int64
	Errors    int64
	Timeouts  int64
	Crashes   int64
	Spawns    int64
}

// NewMetrics registers the collectors with reg. A nil registerer gets a
// private registry so several managers can coexist in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "usercode_jobs_submitted_total",
			Help: "Total number of submitted jobs",
		}),
		JobsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "usercode_jobs_settled_total",
			Help: "Total number of settled jobs by outcome and reason",
		}, []string{"outcome", "reason"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "usercode_job_duration_seconds",
			Help:    "Time from dispatch to settlement",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "usercode_queue_length",
			Help: "Number of jobs waiting for the unit",
		}),
		UnitSpawns: factory.NewCounter(prometheus.CounterOpts{
			Name: "usercode_unit_spawns_total",
			Help: "Total number of execution units started",
		}),
		UnitExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "usercode_unit_exits_total",
			Help: "Total number of execution units discarded by reason",
		}, []string{"reason"}),
		UnitState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "usercode_unit_state",
			Help: "Unit state: 0 inactive, 1 idle, 2 busy",
		}),
		latency: NewLatencyWindow(1024),
	}
}

// RecordSubmit records a job entering the manager
func (m *Metrics) RecordSubmit() {
	m.JobsSubmitted.Inc()
	m.mu.Lock()
	m.snapshot.Submitted++
	m.mu.Unlock()
}

// RecordSettle records a settled job. duration is zero for jobs that never
// reached a unit.
func (m *Metrics) RecordSettle(isError bool, reason string, duration time.Duration) {
	outcome := "output"
	if isError {
		outcome = "error"
	}
	m.JobsSettled.WithLabelValues(outcome, reason).Inc()
	if duration > 0 {
		m.JobDuration.Observe(duration.Seconds())
		m.latency.Add(duration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if isError {
		m.snapshot.Errors++
	} else {
		m.snapshot.Outputs++
	}
	switch reason {
	case ReasonTimeout:
		m.snapshot.Timeouts++
	case ReasonCrash:
		m.snapshot.Crashes++
	}
}

// RecordSpawn records a new unit
func (m *Metrics) RecordSpawn() {
	m.UnitSpawns.Inc()
	m.mu.Lock()
	m.snapshot.Spawns++
	m.mu.Unlock()
}

// RecordUnitExit records a discarded unit
func (m *Metrics) RecordUnitExit(reason string) {
	m.UnitExits.WithLabelValues(reason).Inc()
}

// SetQueueLength sets the queue gauge
func (m *Metrics) SetQueueLength(n int) {
	m.QueueLength.Set(float64(n))
}

// SetUnitState sets the unit state gauge
func (m *Metrics) SetUnitState(state int) {
	m.UnitState.Set(float64(state))
}

// Snapshot returns current counter values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Latency returns the recent latency window
func (m *Metrics) Latency() *LatencyWindow {
	return m.latency
}
