package tracing

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/logging"
)

// Span follows one job from submission to settlement
type Span struct {
	JobID      string
	UnitID     string
	Submitted  time.Time
	Dispatched time.Time
	Settled    time.Time
	Outcome    string
	Reason     string
	Error      string
	Tags       map[string]string
}

// Dispatch records the job being handed to a unit
func (s *Span) Dispatch(unitID string) {
	s.UnitID = unitID
	s.Dispatched = time.Now()
}

// Finish marks the span as complete
func (s *Span) Finish(outcome, reason, errMsg string) {
	s.Settled = time.Now()
	s.Outcome = outcome
	s.Reason = reason
	s.Error = errMsg
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

// QueueWait is the time spent before dispatch. Jobs that never reached a
// unit waited until settlement.
func (s *Span) QueueWait() time.Duration {
	if s.Dispatched.IsZero() {
		return s.Settled.Sub(s.Submitted)
	}
	return s.Dispatched.Sub(s.Submitted)
}

// RunTime is the time from dispatch to settlement, zero if never dispatched
func (s *Span) RunTime() time.Duration {
	if s.Dispatched.IsZero() || s.Settled.IsZero() {
		return 0
	}
	return s.Settled.Sub(s.Dispatched)
}

// Tracer collects finished spans and logs them off the caller's path
type Tracer struct {
	logger *logging.Logger
	spans  chan *Span

	done      chan struct{}
	closeOnce sync.Once
	collector sync.WaitGroup
	dropped   atomic.Int64
}

// New creates a tracer buffering up to buffer spans
func New(logger *logging.Logger, buffer int) *Tracer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if buffer <= 0 {
		buffer = 1000
	}
	t := &Tracer{
		logger: logger,
		spans:  make(chan *Span, buffer),
		done:   make(chan struct{}),
	}

	t.collector.Add(1)
	go t.collectSpans()

	return t
}

// Start opens a span for jobID
func (t *Tracer) Start(jobID string) *Span {
	return &Span{JobID: jobID, Submitted: time.Now()}
}

// Submit hands a finished span to the collector. It never blocks; spans
// are dropped when the buffer is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	select {
	case <-t.done:
		return
	default:
	}

	select {
	case t.spans <- span:
	default:
		if t.dropped.Add(1) == 1 {
			t.logger.Warn("span buffer full, dropping spans", zap.String("job", span.JobID))
		}
	}
}

// Dropped returns how many spans were discarded
func (t *Tracer) Dropped() int64 {
	return t.dropped.Load()
}

// Close flushes buffered spans and stops the collector
func (t *Tracer) Close() {
	t.closeOnce.Do(func() { close(t.done) })
	t.collector.Wait()
}

func (t *Tracer) collectSpans() {
	defer t.collector.Done()
	for {
		select {
		case span := <-t.spans:
			t.processSpan(span)
		case <-t.done:
			for {
				select {
				case span := <-t.spans:
					t.processSpan(span)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.String("job", span.JobID),
		zap.String("outcome", span.Outcome),
		zap.String("reason", span.Reason),
		zap.Duration("queue_wait", span.QueueWait()),
		zap.Duration("run_time", span.RunTime()),
	}
	if span.UnitID != "" {
		fields = append(fields, zap.String("unit", span.UnitID))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != "" {
		fields = append(fields, zap.String("error", span.Error))
	}
	t.logger.Debug("span completed", fields...)
}
