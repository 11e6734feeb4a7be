package usercode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
)

// Error messages delivered to callers
const (
	MsgTerminated   = "Worker terminated"
	MsgClosed       = "Manager closed"
	msgTimeout      = "Job timed out after %d ms"
	msgSpawnFailed  = "Failed to start worker: %v"
	msgDispatch     = "Failed to dispatch job: %v"
	msgDecodeOutput = "Failed to deserialize output: %v"
)

// Manager runs submitted jobs one at a time on a single execution unit.
//
// All manager state is owned by one goroutine (loop). Public methods talk
// to it over channels, so no lock guards the queue or the unit. Every
// submitted job settles exactly once, whatever happens to the unit.
type Manager struct {
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	breaker *resilience.Breaker
	spawner worker.Spawner

	ctx    context.Context
	cancel context.CancelFunc

	submits    chan *job
	terminates chan chan struct{}
	statuses   chan chan Status

	closing   chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	// Owned by loop
	state     State
	unit      worker.Unit
	queue     []*job
	inflight  *job
	jobTimer  timer
	idleTimer timer
}

// New creates a manager and starts its loop. No unit is spawned until the
// first job arrives.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	log := cfg.Logger.Named("usercode")

	spawner := cfg.Spawner
	if spawner == nil {
		child := config.Default()
		child.Worker.MemoryLimitBytes = cfg.MemoryLimitBytes
		child.Worker.MaxCallStackSize = cfg.MaxCallStackSize
		spawner = &worker.ProcessSpawner{
			Path:   cfg.WorkerPath,
			Args:   cfg.WorkerArgs,
			Config: child,
			Logger: log.Named("worker"),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		log:        log,
		metrics:    monitoring.NewMetrics(cfg.Registerer),
		tracer:     tracing.New(log.Named("trace"), 1000),
		spawner:    spawner,
		ctx:        ctx,
		cancel:     cancel,
		submits:    make(chan *job),
		terminates: make(chan chan struct{}),
		statuses:   make(chan chan Status),
		closing:    make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	m.breaker = resilience.New("worker-spawn", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         5 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	go m.loop()
	return m
}

// RunUserCode submits in and waits for its outcome. Failures, including ctx
// ending first, are reported as error outputs.
func (m *Manager) RunUserCode(ctx context.Context, in Input) Output {
	out, err := m.Submit(in).Wait(ctx)
	if err != nil {
		return ErrorOutput(err.Error())
	}
	return out
}

// Submit enqueues in without waiting. Jobs submitted from one goroutine
// run in submission order. Invalid submissions settle before Submit
// returns and never reach the queue.
func (m *Manager) Submit(in Input) *Pending {
	jobID := id.NewJobID()
	j := &job{pending: newPending(jobID), span: m.tracer.Start(jobID.String())}
	j.span.SetTag("language", string(in.CodeLanguage))
	m.metrics.RecordSubmit()

	req, err := compile(in)
	if err != nil {
		m.finish(j, ErrorOutput(err.Error()), monitoring.ReasonValidation)
		return j.pending
	}
	req.ID = j.pending.ID().String()
	j.req = req

	select {
	case m.submits <- j:
	case <-m.closing:
		m.finish(j, ErrorOutput(MsgClosed), monitoring.ReasonClosed)
	}
	return j.pending
}

// Terminate kills the unit and fails the job in flight with
// MsgTerminated. Queued jobs stay queued and run on a new unit. Safe to
// call in any state.
func (m *Manager) Terminate(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case m.terminates <- done:
	case <-m.closing:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the manager. The unit is killed and every unsettled job
// fails with MsgClosed, as does every later submission.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() { close(m.closing) })
	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current state
func (m *Manager) Status() Status {
	reply := make(chan Status, 1)
	select {
	case m.statuses <- reply:
		return <-reply
	case <-m.stopped:
		return Status{State: StateInactive, Closed: true}
	}
}

// Stats returns lifetime counters and recent latency
func (m *Manager) Stats() Stats {
	snap := m.metrics.Snapshot()
	latency := m.metrics.Latency()
	return Stats{
		Submitted:   snap.Submitted,
		Outputs:     snap.Outputs,
		Errors:      snap.Errors,
		Timeouts:    snap.Timeouts,
		Crashes:     snap.Crashes,
		Spawns:      snap.Spawns,
		LatencyP50:  latency.Quantile(0.5),
		LatencyP95:  latency.Quantile(0.95),
		LatencyMean: latency.Mean(),
	}
}

func (m *Manager) loop() {
	defer close(m.stopped)

	for {
		var results <-chan worker.Response
		var exited <-chan worker.ExitStatus
		if m.unit != nil {
			results = m.unit.Results()
			exited = m.unit.Exited()
		}

		select {
		case j := <-m.submits:
			m.queue = append(m.queue, j)
			m.dispatch()

		case resp := <-results:
			m.handleResponse(resp)

		case status := <-exited:
			m.handleExit(status)

		case <-m.jobTimer.C():
			m.jobTimer.fired()
			m.handleJobTimeout()

		case <-m.idleTimer.C():
			m.idleTimer.fired()
			m.handleIdleTimeout()

		case done := <-m.terminates:
			m.terminate()
			close(done)

		case reply := <-m.statuses:
			reply <- m.status()

		case <-m.closing:
			m.shutdown()
			return
		}
	}
}

// dispatch sends the next queued job to the unit when none is in flight,
// spawning a unit if needed. Without work left it arms the idle timer.
func (m *Manager) dispatch() {
	for m.inflight == nil && len(m.queue) > 0 {
		j := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]

		if m.unit == nil {
			if err := m.spawn(); err != nil {
				m.finish(j, ErrorOutput(fmt.Sprintf(msgSpawnFailed, err)), monitoring.ReasonSpawnFailed)
				continue
			}
		}

		m.idleTimer.disarm()
		if err := m.unit.Submit(j.req); err != nil {
			m.finish(j, ErrorOutput(fmt.Sprintf(msgDispatch, err)), monitoring.ReasonCrash)
			m.discard(monitoring.ReasonCrash)
			continue
		}

		j.span.Dispatch(m.unit.ID().String())
		m.inflight = j
		m.jobTimer.arm(m.cfg.JobTimeout)
		m.setState(StateBusy)
	}

	if len(m.queue) == 0 {
		// Release the backing array once drained.
		m.queue = nil
	}
	m.metrics.SetQueueLength(len(m.queue))

	if m.inflight == nil {
		if m.unit != nil {
			m.idleTimer.arm(m.cfg.IdleTimeout)
			m.setState(StateIdle)
		} else {
			m.setState(StateInactive)
		}
	}
}

func (m *Manager) spawn() error {
	unit, err := resilience.Execute(m.breaker, func() (worker.Unit, error) {
		return m.spawner.Spawn(m.ctx)
	})
	if err != nil {
		m.log.Warn("Failed to start worker",
			zap.String("breaker", m.breaker.Name()),
			zap.Stringer("breaker_state", m.breaker.State()),
			zap.Error(err),
		)
		return err
	}

	m.unit = unit
	m.metrics.RecordSpawn()
	m.log.Info("Worker started",
		zap.String("unit", unit.ID().String()),
		zap.Int("pid", unit.PID()),
	)
	return nil
}

// discard kills the current unit and forgets it. Its later events are
// never read.
func (m *Manager) discard(reason string) {
	if m.unit == nil {
		return
	}
	unit := m.unit
	m.unit = nil
	m.idleTimer.disarm()
	m.metrics.RecordUnitExit(reason)

	if err := unit.Kill(); err != nil {
		m.log.Warn("Failed to kill worker", zap.String("unit", unit.ID().String()), zap.Error(err))
	}
	m.log.Info("Worker discarded", zap.String("unit", unit.ID().String()), zap.String("reason", reason))
}

func (m *Manager) handleResponse(resp worker.Response) {
	if m.inflight == nil || resp.ID != m.inflight.req.ID {
		m.log.Debug("Ignoring stale response", zap.String("job", resp.ID))
		return
	}
	j := m.inflight
	m.inflight = nil
	m.jobTimer.disarm()

	for _, entry := range resp.Console {
		m.log.Debug("Console",
			zap.String("job", resp.ID),
			zap.String("level", entry.Level),
			zap.String("message", entry.Message),
		)
	}

	out, reason := outputOf(resp)
	m.finish(j, out, reason)
	m.dispatch()
}

func (m *Manager) handleExit(status worker.ExitStatus) {
	if m.unit == nil || status.UnitID != m.unit.ID() {
		return
	}
	m.log.Warn("Worker exited",
		zap.String("unit", status.UnitID.String()),
		zap.Int("code", status.Code),
		zap.String("signal", status.Signal),
		zap.Bool("memory_exceeded", status.MemoryExceeded),
	)
	m.unit = nil
	m.idleTimer.disarm()
	m.metrics.RecordUnitExit(monitoring.ReasonCrash)

	if j := m.inflight; j != nil {
		m.inflight = nil
		m.jobTimer.disarm()
		m.finish(j, ErrorOutput(status.Message()), monitoring.ReasonCrash)
	}
	m.dispatch()
}

func (m *Manager) handleJobTimeout() {
	j := m.inflight
	if j == nil {
		return
	}
	m.inflight = nil

	ms := m.cfg.JobTimeout.Milliseconds()
	m.log.Warn("Job timed out", zap.String("job", j.req.ID), zap.Int64("timeout_ms", ms))
	m.finish(j, ErrorOutput(fmt.Sprintf(msgTimeout, ms)), monitoring.ReasonTimeout)
	m.discard(monitoring.ReasonTimeout)
	m.dispatch()
}

func (m *Manager) handleIdleTimeout() {
	if m.inflight != nil || len(m.queue) > 0 {
		return
	}
	m.discard(monitoring.ReasonIdle)
	m.setState(StateInactive)
}

func (m *Manager) terminate() {
	m.jobTimer.disarm()
	m.idleTimer.disarm()
	m.discard(monitoring.ReasonTerminated)

	if j := m.inflight; j != nil {
		m.inflight = nil
		m.finish(j, ErrorOutput(MsgTerminated), monitoring.ReasonTerminated)
	}
	// Queued jobs carry over to a new unit.
	m.dispatch()
}

func (m *Manager) shutdown() {
	m.cancel()
	m.jobTimer.disarm()
	m.idleTimer.disarm()
	m.discard(monitoring.ReasonClosed)

	if j := m.inflight; j != nil {
		m.inflight = nil
		m.finish(j, ErrorOutput(MsgClosed), monitoring.ReasonClosed)
	}
	for _, j := range m.queue {
		m.finish(j, ErrorOutput(MsgClosed), monitoring.ReasonClosed)
	}
	m.queue = nil
	m.metrics.SetQueueLength(0)
	m.setState(StateInactive)
	m.tracer.Close()
	m.log.Debug("Manager closed")
}

func (m *Manager) status() Status {
	s := Status{State: m.state, QueueLength: len(m.queue)}
	if m.unit != nil {
		s.UnitID = m.unit.ID()
		s.PID = m.unit.PID()
	}
	if m.inflight != nil {
		s.InFlight = m.inflight.pending.ID()
	}
	return s
}

func (m *Manager) setState(state State) {
	if m.state == state {
		return
	}
	m.log.Debug("State changed", zap.String("from", m.state.String()), zap.String("to", state.String()))
	m.state = state
	m.metrics.SetUnitState(int(state))
}

// finish records the outcome of j and settles it. Metrics are updated
// first so a caller woken by the settlement sees them.
func (m *Manager) finish(j *job, out Output, reason string) {
	if !j.pending.claim() {
		return
	}
	j.span.Finish(string(out.Type), reason, out.Error)
	m.metrics.RecordSettle(out.IsError(), reason, j.span.RunTime())
	m.tracer.Submit(j.span)
	j.pending.resolve(out)
}

// outputOf converts a unit response
func outputOf(resp worker.Response) (Output, string) {
	if resp.Failed() {
		return ErrorOutput(*resp.Error), monitoring.ReasonUserError
	}
	if resp.Output == nil {
		return ValueOutput(codec.Undefined), monitoring.ReasonOK
	}
	v, err := codec.Decode(resp.Output)
	if err != nil {
		return ErrorOutput(fmt.Sprintf(msgDecodeOutput, err)), monitoring.ReasonUserError
	}
	return ValueOutput(v), monitoring.ReasonOK
}
