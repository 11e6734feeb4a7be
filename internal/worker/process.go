package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/shared/id"
)

// EnvChild marks a process started as a worker
const EnvChild = "USERCODE_WORKER"

// ProcessSpawner starts units as child processes. With an empty Path the
// current executable is re-executed; its main must hand control to Main
// when IsChild reports true.
type ProcessSpawner struct {
	Path   string
	Args   []string
	Config *config.Config
	Logger *logging.Logger

	// StderrLinesPerSecond throttles forwarding of child stderr
	StderrLinesPerSecond float64
}

// Spawn starts a worker process
func (s *ProcessSpawner) Spawn(ctx context.Context) (Unit, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}

	cfg := s.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := s.Logger
	if log == nil {
		log = logging.NewNop()
	}
	perSecond := s.StderrLinesPerSecond
	if perSecond <= 0 {
		perSecond = 50
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, s.Args...)
	// No host variables reach the child.
	cmd.Env = append(cfg.Environ(), EnvChild+"=1")
	cmd.SysProcAttr = sysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	unitID := id.NewUnitID()
	p := &Process{
		id:       unitID,
		cmd:      cmd,
		log:      log.With(zap.String("unit", unitID.String()), zap.Int("pid", cmd.Process.Pid)),
		limiter:  rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		requests: make(chan Request, 1),
		results:  make(chan Response),
		exited:   make(chan ExitStatus, 1),
		quit:     make(chan struct{}),
	}

	p.readers.Add(2)
	go p.writeLoop(stdin)
	go p.readLoop(stdout)
	go p.stderrLoop(stderr)
	go p.wait()

	p.log.Debug("Worker started", zap.String("path", path))
	return p, nil
}

// Process is a Unit backed by a child process
type Process struct {
	id      id.UnitID
	cmd     *exec.Cmd
	log     *logging.Logger
	limiter *rate.Limiter

	requests chan Request
	results  chan Response
	exited   chan ExitStatus

	quit     chan struct{}
	killOnce sync.Once
	killed   atomic.Bool
	oom      atomic.Bool
	readers  sync.WaitGroup
}

func (p *Process) ID() id.UnitID { return p.id }

func (p *Process) PID() int { return p.cmd.Process.Pid }

func (p *Process) Results() <-chan Response { return p.results }

func (p *Process) Exited() <-chan ExitStatus { return p.exited }

// Submit hands req to the writer. It never blocks.
func (p *Process) Submit(req Request) error {
	select {
	case <-p.quit:
		return ErrUnitClosed
	default:
	}

	select {
	case p.requests <- req:
		return nil
	default:
		return ErrUnitBusy
	}
}

// Kill terminates the process. Safe to call more than once.
func (p *Process) Kill() error {
	var err error
	p.killOnce.Do(func() {
		p.killed.Store(true)
		close(p.quit)
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
	})
	return err
}

func (p *Process) writeLoop(stdin io.WriteCloser) {
	defer stdin.Close()
	enc := NewEncoder(stdin)

	for {
		select {
		case <-p.quit:
			return
		case req := <-p.requests:
			if err := enc.Encode(req); err != nil {
				p.log.Warn("Failed to write request", zap.String("job", req.ID), zap.Error(err))
				return
			}
		}
	}
}

func (p *Process) readLoop(stdout io.Reader) {
	defer p.readers.Done()
	dec := NewDecoder(stdout)

	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Warn("Failed to read response", zap.Error(err))
			}
			// Unblock cmd.Wait even if the child keeps stdout open.
			_, _ = io.Copy(io.Discard, stdout)
			return
		}

		select {
		case p.results <- resp:
		case <-p.quit:
			_, _ = io.Copy(io.Discard, stdout)
			return
		}
	}
}

func (p *Process) stderrLoop(stderr io.Reader) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	dropped := 0

	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "out of memory") || strings.Contains(line, "memory limit exceeded") {
			p.oom.Store(true)
		}

		if !p.limiter.Allow() {
			dropped++
			continue
		}
		if dropped > 0 {
			p.log.Warn("Dropped worker stderr lines", zap.Int("count", dropped))
			dropped = 0
		}
		p.log.Info("Worker stderr", zap.String("line", line))
	}
	_, _ = io.Copy(io.Discard, stderr)
}

// wait reaps the process once both output streams are drained, so every
// response is delivered before the exit status.
func (p *Process) wait() {
	p.readers.Wait()
	err := p.cmd.Wait()

	status := ExitStatus{
		UnitID: p.id,
		Code:   p.cmd.ProcessState.ExitCode(),
		Killed: p.killed.Load(),
	}
	if ws, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		// Shell convention for signal deaths
		status.Code = 128 + int(ws.Signal())
		status.Signal = ws.Signal().String()
	}
	status.MemoryExceeded = status.Code == ExitMemoryLimit || p.oom.Load()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}

	p.log.Debug("Worker exited",
		zap.Int("code", status.Code),
		zap.String("signal", status.Signal),
		zap.Bool("killed", status.Killed),
	)
	p.exited <- status
}
