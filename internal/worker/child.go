package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/sandbox"
)

// Worker exit codes
const (
	ExitOK          = 0
	ExitProtocol    = 76
	ExitConfig      = 78
	ExitMemoryLimit = 134
)

// addressSpaceHeadroom is added to the heap limit for RLIMIT_AS. The Go
// runtime reserves address space well beyond its live heap, so the heap
// watchdog is the precise ceiling and the rlimit the backstop.
const addressSpaceHeadroom = 4 << 30

// IsChild reports whether this process was started as a worker
func IsChild() bool {
	return os.Getenv(EnvChild) == "1"
}

// Main runs the worker side of the protocol on stdin and stdout and returns
// the process exit code.
func Main() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitConfig
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitConfig
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("worker").With(zap.Int("pid", os.Getpid()))

	limit := cfg.Worker.MemoryLimitBytes
	debug.SetMemoryLimit(limit * 3 / 4)
	if err := limitAddressSpace(uint64(limit) + addressSpaceHeadroom); err != nil {
		log.Warn("Failed to set address space limit", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	go watchHeap(ctx, uint64(limit), cfg.Worker.WatchdogInterval, func(used uint64) {
		log.Error("memory limit exceeded",
			zap.Uint64("heap_bytes", used),
			zap.Int64("limit_bytes", limit),
		)
		_ = log.Sync()
		os.Exit(ExitMemoryLimit)
	})

	log.Debug("Worker ready", zap.Int64("memory_limit", limit))

	err = Serve(ctx, os.Stdin, os.Stdout, ServeConfig{
		Sandbox: sandbox.Config{
			MaxCallStackSize: cfg.Worker.MaxCallStackSize,
			EnableConsole:    cfg.Worker.EnableConsole,
			MaxConsoleLines:  sandbox.DefaultConfig().MaxConsoleLines,
		},
		Logger: log,
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitOK
	default:
		log.Error("Worker protocol failure", zap.Error(err))
		return ExitProtocol
	}
}

// ServeConfig configures Serve
type ServeConfig struct {
	Sandbox sandbox.Config
	Logger  *logging.Logger
}

// Serve answers requests from r on w until r is exhausted or ctx ends.
// Each request runs in a runtime of its own.
func Serve(ctx context.Context, r io.Reader, w io.Writer, cfg ServeConfig) error {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	dec := NewDecoder(r)
	enc := NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}

		resp := execute(ctx, req, cfg.Sandbox)
		log.Debug("Job finished",
			zap.String("job", req.ID),
			zap.String("shape", string(req.Shape)),
			zap.Bool("failed", resp.Failed()),
			zap.Float64("duration_ms", resp.DurationMs),
		)

		if err := enc.Encode(resp); err != nil {
			if !errors.Is(err, ErrFrameTooLarge) {
				return fmt.Errorf("failed to write response: %w", err)
			}
			if err := enc.Encode(ErrorResponse(req.ID, "Result is too large to transfer")); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

func execute(ctx context.Context, req Request, cfg sandbox.Config) Response {
	rt, err := sandbox.New(cfg)
	if err != nil {
		return ErrorResponse(req.ID, fmt.Sprintf("Failed to create sandbox: %v", err))
	}
	return NewResponse(req.ID, rt.Run(ctx, req.Source, sandbox.Call{Input: req.Input, Spread: req.Spread, Shape: req.Shape}))
}
