// Package id generates the identifiers used by the user-code manager.
//
// Jobs and execution units are identified by prefixed ULIDs:
//   - job_<ulid>: one submitted snippet, sortable by submission time
//   - unit_<ulid>: one spawned worker process; never reused after it dies
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobID identifies a submitted job
type JobID string

// UnitID identifies an isolated execution unit
type UnitID string

const (
	JobPrefix  = "job"
	UnitPrefix = "unit"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside the same millisecond.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewJobID generates a new job ID
func NewJobID() JobID {
	return JobID(Default().GenerateWithPrefix(JobPrefix))
}

// NewUnitID generates a new unit ID
func NewUnitID() UnitID {
	return UnitID(Default().GenerateWithPrefix(UnitPrefix))
}

func (id JobID) String() string  { return string(id) }
func (id UnitID) String() string { return string(id) }
