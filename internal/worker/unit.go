package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/shared/id"
)

var (
	ErrUnitBusy   = errors.New("unit already has a job in flight")
	ErrUnitClosed = errors.New("unit is closed")
)

// Unit is one live execution unit. It runs at most one request at a time
// and reports each response on Results. When the unit ends, for any
// reason, a single ExitStatus is delivered on Exited after every response
// it produced.
type Unit interface {
	ID() id.UnitID
	PID() int
	Submit(req Request) error
	Results() <-chan Response
	Exited() <-chan ExitStatus
	Kill() error
}

// Spawner starts units
type Spawner interface {
	Spawn(ctx context.Context) (Unit, error)
}

// ExitStatus describes how a unit ended
type ExitStatus struct {
	UnitID id.UnitID
	Code   int
	Signal string
	// MemoryExceeded is set when the unit stopped at its memory ceiling
	MemoryExceeded bool
	// Killed is set when the host asked for the termination
	Killed bool
	Err    error
}

// Message renders the abnormal-exit error handed to the job in flight
func (s ExitStatus) Message() string {
	msg := fmt.Sprintf("Worker exited with code %d", s.Code)
	switch {
	case s.MemoryExceeded:
		msg += ": memory limit exceeded"
	case s.Signal != "":
		msg += fmt.Sprintf(" (signal: %s)", s.Signal)
	}
	return msg
}
