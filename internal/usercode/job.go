package usercode

import (
	"context"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
)

// Pending is the handle of a submitted job. It settles exactly once.
type Pending struct {
	id      id.JobID
	done    chan struct{}
	claimed atomic.Bool
	out     Output
}

func newPending(jobID id.JobID) *Pending {
	return &Pending{id: jobID, done: make(chan struct{})}
}

// ID returns the job ID
func (p *Pending) ID() id.JobID { return p.id }

// Done is closed once the job has settled
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the job settles or ctx ends. A ctx error leaves the job
// running.
func (p *Pending) Wait(ctx context.Context) (Output, error) {
	select {
	case <-p.done:
		return p.out, nil
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}

// Output returns the outcome and whether the job has settled
func (p *Pending) Output() (Output, bool) {
	select {
	case <-p.done:
		return p.out, true
	default:
		return Output{}, false
	}
}

// claim reserves the right to settle. Only the first caller wins.
func (p *Pending) claim() bool {
	return p.claimed.CompareAndSwap(false, true)
}

// resolve publishes out; the caller must hold the claim
func (p *Pending) resolve(out Output) {
	p.out = out
	close(p.done)
}

// job is the manager's record of one submission
type job struct {
	pending *Pending
	req     worker.Request
	span    *tracing.Span
}
