package usercode

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
)

// Language identifies the language of a submitted snippet
type Language string

const (
	LanguageJavaScript Language = "JAVASCRIPT"
)

// Input is one submission
type Input struct {
	Code         string   `json:"code"`
	CodeLanguage Language `json:"codeLanguage"`
	// Input is passed to the entry function. nil means no argument
	// (undefined); use codec.Undefined or a typed value otherwise.
	Input             any  `json:"input,omitempty"`
	ShouldSpreadInput bool `json:"shouldSpreadInput,omitempty"`
}

// OutputType tags an Output
type OutputType string

const (
	OutputTypeOutput OutputType = "output"
	OutputTypeError  OutputType = "error"
)

// Output is the outcome of one job: a value or an error message, never both
type Output struct {
	Type   OutputType
	Output any
	Error  string
}

// ValueOutput builds a successful Output
func ValueOutput(v any) Output {
	return Output{Type: OutputTypeOutput, Output: v}
}

// ErrorOutput builds a failed Output
func ErrorOutput(msg string) Output {
	return Output{Type: OutputTypeError, Error: msg}
}

// IsError reports whether the job failed
func (o Output) IsError() bool {
	return o.Type == OutputTypeError
}

type valueJSON struct {
	Type   OutputType `json:"__type"`
	Output any        `json:"output"`
}

type errorJSON struct {
	Type  OutputType `json:"__type"`
	Error string     `json:"error"`
}

// MarshalJSON renders {"__type":"output","output":...} or
// {"__type":"error","error":"..."}. An undefined output renders as null.
func (o Output) MarshalJSON() ([]byte, error) {
	if o.IsError() {
		return sonic.ConfigStd.Marshal(errorJSON{Type: OutputTypeError, Error: o.Error})
	}
	v := o.Output
	if codec.IsUndefined(v) {
		v = nil
	}
	return sonic.ConfigStd.Marshal(valueJSON{Type: OutputTypeOutput, Output: v})
}

// Config configures a Manager. Zero fields take the DefaultConfig values.
type Config struct {
	// IdleTimeout is how long a warm unit is kept without work
	IdleTimeout time.Duration
	// JobTimeout bounds the wall-clock time of one job
	JobTimeout time.Duration
	// MemoryLimitBytes bounds the heap of the unit
	MemoryLimitBytes int64
	// MaxCallStackSize bounds JavaScript call depth inside the unit
	MaxCallStackSize int

	// WorkerPath is the worker executable; empty re-executes the current
	// binary, whose main must call worker.Main when worker.IsChild is true.
	WorkerPath string
	WorkerArgs []string

	Logger     *logging.Logger
	Registerer prometheus.Registerer

	// Spawner replaces process spawning, mainly for tests
	Spawner worker.Spawner
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      30 * time.Second,
		JobTimeout:       5 * time.Second,
		MemoryLimitBytes: 128 << 20,
		MaxCallStackSize: 10000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.MemoryLimitBytes <= 0 {
		c.MemoryLimitBytes = def.MemoryLimitBytes
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = def.MaxCallStackSize
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	return c
}

// State is the manager state
type State int

const (
	StateInactive State = iota
	StateIdle
	StateBusy
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the manager. UnitID and PID are empty
// while no unit exists.
type Status struct {
	State       State
	UnitID      id.UnitID
	PID         int
	QueueLength int
	InFlight    id.JobID
	Closed      bool
}

// Stats holds lifetime counters and recent latency
type Stats struct {
	Submitted int64
	Outputs   int64
	Errors    int64
	Timeouts  int64
	Crashes   int64
	Spawns    int64

	LatencyP50  time.Duration
	LatencyP95  time.Duration
	LatencyMean time.Duration
}
