package usercode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
)

// fakeSpawner starts in-memory units. The unit behavior is chosen from the
// job source: "hang" never answers, "crash" exits with code 1, "fail"
// answers with an error and anything else echoes the input.
type fakeSpawner struct {
	mu     sync.Mutex
	units  []*fakeUnit
	err    error
	spawns atomic.Int32
}

func (s *fakeSpawner) Spawn(ctx context.Context) (worker.Unit, error) {
	s.spawns.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	u := &fakeUnit{
		id:      id.NewUnitID(),
		results: make(chan worker.Response),
		exited:  make(chan worker.ExitStatus, 1),
		quit:    make(chan struct{}),
	}
	s.mu.Lock()
	s.units = append(s.units, u)
	s.mu.Unlock()
	return u, nil
}

func (s *fakeSpawner) unit(i int) *fakeUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[i]
}

type fakeUnit struct {
	id      id.UnitID
	results chan worker.Response
	exited  chan worker.ExitStatus
	quit    chan struct{}
	once    sync.Once
	killed  atomic.Bool
}

func (u *fakeUnit) ID() id.UnitID                    { return u.id }
func (u *fakeUnit) PID() int                         { return 4242 }
func (u *fakeUnit) Results() <-chan worker.Response  { return u.results }
func (u *fakeUnit) Exited() <-chan worker.ExitStatus { return u.exited }

func (u *fakeUnit) Submit(req worker.Request) error {
	if u.killed.Load() {
		return worker.ErrUnitClosed
	}
	go u.run(req)
	return nil
}

func (u *fakeUnit) Kill() error {
	u.once.Do(func() {
		u.killed.Store(true)
		close(u.quit)
	})
	return nil
}

func (u *fakeUnit) run(req worker.Request) {
	switch {
	case strings.Contains(req.Source, "hang"):
		<-u.quit
	case strings.Contains(req.Source, "crash"):
		u.exited <- worker.ExitStatus{UnitID: u.id, Code: 1}
	case strings.Contains(req.Source, "fail"):
		msg := "boom"
		u.respond(worker.Response{ID: req.ID, Error: &msg})
	default:
		out := req.Input
		if out == nil {
			out = codec.UndefinedWire()
		}
		u.respond(worker.Response{ID: req.ID, Output: out})
	}
}

func (u *fakeUnit) respond(resp worker.Response) {
	select {
	case u.results <- resp:
	case <-u.quit:
	}
}

var errSpawn = errors.New("exec format error")
