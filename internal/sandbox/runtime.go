package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/wrapper"
)

// Messages surfaced to callers
const (
	MsgStackOverflow  = "Maximum call stack size exceeded"
	MsgPromisePending = "Promise did not settle"
	MsgNotAFunction   = "Entry point is not a function"
)

var (
	ErrRuntimeUsed = errors.New("runtime already ran a program")

	errMissingPrototype = errors.New("constructor has no prototype")
	errRelativeURL      = errors.New("relative URL without a base")
)

// deniedGlobals must resolve as "not defined" inside user code
var deniedGlobals = []string{
	"require", "module", "exports", "process",
	"fetch", "XMLHttpRequest", "WebSocket",
	"setTimeout", "setInterval", "setImmediate",
	"clearTimeout", "clearInterval", "clearImmediate",
	"queueMicrotask",
}

// Runtime is a single-use JavaScript realm. It is not safe for concurrent
// use; create one per job.
type Runtime struct {
	vm         *goja.Runtime
	config     Config
	intrinsics *intrinsics
	url        *urlClass

	console []LogEntry
	used    bool
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	vm := goja.New()
	if config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	r := &Runtime{
		vm:     vm,
		config: config,
	}

	if err := r.setupGlobals(); err != nil {
		return nil, fmt.Errorf("failed to set up globals: %w", err)
	}

	in, err := captureIntrinsics(vm)
	if err != nil {
		return nil, fmt.Errorf("failed to capture intrinsics: %w", err)
	}
	r.intrinsics = in

	return r, nil
}

// Run evaluates source, which must yield the entry function, and calls it
// with call.Input. With Spread set and an array (or Map/Set) input, each
// element is passed as its own argument. ctx cancellation interrupts the VM.
func (r *Runtime) Run(ctx context.Context, source string, call Call) (result *Result) {
	start := time.Now()
	result = &Result{}

	defer func() {
		if p := recover(); p != nil {
			result.fail(fmt.Sprintf("Internal error: %v", p))
		}
		result.Console = r.console
		result.Duration = time.Since(start)
	}()

	if r.used {
		return result.fail(ErrRuntimeUsed.Error())
	}
	r.used = true

	stop := r.watch(ctx)
	defer stop()

	// Input is built first, while prototypes are untouched.
	var arg goja.Value = goja.Undefined()
	if call.Input != nil {
		v, err := r.ToValue(call.Input)
		if err != nil {
			return result.fail("Failed to decode input: " + r.message(err))
		}
		arg = v
	}

	entry, err := r.vm.RunString(source)
	if err != nil {
		return result.fail(r.message(err))
	}
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return result.fail(MsgNotAFunction)
	}

	args, err := r.arguments(arg, call)
	if err != nil {
		return result.fail(r.message(err))
	}

	ret, err := fn(goja.Undefined(), args...)
	if err == nil {
		ret, err = r.settle(ret)
	}
	if err != nil {
		return result.fail(r.message(err))
	}

	w, err := r.FromValue(ret)
	if err != nil {
		return result.fail("Failed to serialize result: " + r.message(err))
	}
	result.Value = w
	return result
}

// watch interrupts the VM when ctx ends. The returned func stops watching.
func (r *Runtime) watch(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (r *Runtime) arguments(arg goja.Value, call Call) ([]goja.Value, error) {
	if call.Spread {
		if obj, ok := arg.(*goja.Object); ok {
			if args, ok, err := r.elements(obj); ok || err != nil {
				return args, err
			}
		}
	}
	if call.Shape == wrapper.ShapeNone {
		return nil, nil
	}
	return []goja.Value{arg}, nil
}

// elements lists the members of an array, the [key, value] entries of a
// Map or the values of a Set. ok is false for any other object.
func (r *Runtime) elements(obj *goja.Object) (args []goja.Value, ok bool, err error) {
	in := r.intrinsics
	switch {
	case obj.ClassName() == "Array":
		n := obj.Get("length").ToInteger()
		if n > maxArrayLength {
			return nil, true, fmt.Errorf("array of length %d is too large to spread", n)
		}
		args = make([]goja.Value, n)
		for i := range args {
			args[i] = obj.Get(strconv.Itoa(i))
		}
		return args, true, nil

	case in.isMap(obj):
		collect := r.vm.ToValue(func(c goja.FunctionCall) goja.Value {
			args = append(args, r.vm.NewArray(c.Argument(1), c.Argument(0)))
			return goja.Undefined()
		})
		_, err = in.mapForEach(obj, collect)
		return args, true, err

	case in.isSet(obj):
		collect := r.vm.ToValue(func(c goja.FunctionCall) goja.Value {
			args = append(args, c.Argument(0))
			return goja.Undefined()
		})
		_, err = in.setForEach(obj, collect)
		return args, true, err
	}
	return nil, false, nil
}

// rejection carries the reason of a rejected promise
type rejection struct {
	reason goja.Value
}

func (e *rejection) Error() string { return "promise rejected" }

// settle unwraps a promise returned by the entry function. The job queue
// has already been drained when the call returned, so a promise that is
// still pending can never settle.
func (r *Runtime) settle(v goja.Value) (goja.Value, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v, nil
	}
	p := promiseOf(obj)
	if p == nil {
		return v, nil
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, &rejection{reason: p.Result()}
	}
	return nil, errors.New(MsgPromisePending)
}

// message extracts the caller-facing text of a failure
func (r *Runtime) message(err error) string {
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return MsgStackOverflow
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("Execution interrupted: %v", interrupted.Value())
	}
	var rejected *rejection
	if errors.As(err, &rejected) {
		return r.valueMessage(rejected.reason)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return r.valueMessage(ex.Value())
	}
	return err.Error()
}

// valueMessage returns the message of a thrown value: the message property
// of an object when present, its string form otherwise.
func (r *Runtime) valueMessage(v goja.Value) string {
	if v == nil {
		return "undefined"
	}

	var msg string
	found := false
	if obj, ok := v.(*goja.Object); ok {
		ex := r.vm.Try(func() {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				msg, found = m.String(), true
			}
		})
		if ex == nil && found {
			return msg
		}
	}

	if ex := r.vm.Try(func() { msg = v.String() }); ex != nil {
		return "Uncaught exception"
	}
	return msg
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	global := r.vm.GlobalObject()
	for _, name := range deniedGlobals {
		if err := global.Delete(name); err != nil {
			return err
		}
	}

	if err := r.vm.Set("global", global); err != nil {
		return err
	}

	u, err := installURL(r.vm)
	if err != nil {
		return err
	}
	r.url = u

	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	return r.vm.Set("console", console)
}

// makeConsoleFunc creates a console function. With the console disabled
// calls are accepted and discarded.
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !r.config.EnableConsole {
			return goja.Undefined()
		}
		if limit := r.config.MaxConsoleLines; limit > 0 && len(r.console) >= limit {
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		return goja.Undefined()
	}
}
