package sandbox

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/wrapper"
)

// Config defines sandbox configuration
type Config struct {
	MaxCallStackSize int  // Maximum JavaScript call depth
	EnableConsole    bool // Capture console.log/info/warn/error/debug
	MaxConsoleLines  int  // Entries kept per job; later ones are dropped
}

// Call describes how the entry function receives its input. A nil Input
// is passed as undefined.
type Call struct {
	Input  *codec.Wire
	Spread bool
	Shape  wrapper.Shape
}

// Result holds the outcome of one job. Value is meaningful unless Failed
// is set; Error may be empty, as for a thrown "" or a bare new Error().
type Result struct {
	Value    *codec.Wire   // Serialized return value
	Failed   bool          // The job threw or could not run
	Error    string        // Exception message
	Console  []LogEntry    // Console output
	Duration time.Duration // Execution time
}

func (r *Result) fail(msg string) *Result {
	r.Value = nil
	r.Failed = true
	r.Error = msg
	return r
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// DefaultConfig returns the configuration used by workers
func DefaultConfig() Config {
	return Config{
		MaxCallStackSize: 10000,
		EnableConsole:    true,
		MaxConsoleLines:  200,
	}
}
