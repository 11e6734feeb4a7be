package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/infrastructure/config"
)

// The test binary doubles as the worker executable.
func TestMain(m *testing.M) {
	if IsChild() {
		os.Exit(Main())
	}
	os.Exit(m.Run())
}

const waitLimit = 10 * time.Second

func spawn(t *testing.T, cfg *config.Config) Unit {
	t.Helper()
	spawner := &ProcessSpawner{Config: cfg}
	unit, err := spawner.Spawn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = unit.Kill() })
	return unit
}

func result(t *testing.T, unit Unit) Response {
	t.Helper()
	select {
	case resp := <-unit.Results():
		return resp
	case status := <-unit.Exited():
		t.Fatalf("unit exited early: %s", status.Message())
	case <-time.After(waitLimit):
		t.Fatal("timed out waiting for result")
	}
	return Response{}
}

func exit(t *testing.T, unit Unit) ExitStatus {
	t.Helper()
	for {
		select {
		case <-unit.Results():
		case status := <-unit.Exited():
			return status
		case <-time.After(waitLimit):
			t.Fatal("timed out waiting for exit")
			return ExitStatus{}
		}
	}
}

func TestProcessRunsJobs(t *testing.T) {
	unit := spawn(t, nil)
	assert.Positive(t, unit.PID())
	assert.NotEmpty(t, unit.ID())

	for i, n := range []float64{1, 2, 3} {
		req := request(t, "job", `function f(x) { return x + 1 }`, n)
		require.NoError(t, unit.Submit(req))

		resp := result(t, unit)
		require.False(t, resp.Failed(), "job %d", i)
		out, err := codec.Decode(resp.Output)
		require.NoError(t, err)
		assert.Equal(t, n+1, out)
	}
}

func TestProcessExposesNoHostObjects(t *testing.T) {
	unit := spawn(t, nil)

	require.NoError(t, unit.Submit(request(t, "job", `function f() { return typeof process }`, nil)))
	resp := result(t, unit)
	out, err := codec.Decode(resp.Output)
	require.NoError(t, err)
	assert.Equal(t, "undefined", out)
}

func TestProcessKill(t *testing.T) {
	unit := spawn(t, nil)
	require.NoError(t, unit.Submit(request(t, "job", `function f() { while (true) {} }`, nil)))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, unit.Kill())
	require.NoError(t, unit.Kill())

	status := exit(t, unit)
	assert.True(t, status.Killed)
	assert.Equal(t, unit.ID(), status.UnitID)
	assert.NotEqual(t, 0, status.Code)

	assert.ErrorIs(t, unit.Submit(request(t, "job", `function f() {}`, nil)), ErrUnitClosed)
}

func TestProcessMemoryLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.MemoryLimitBytes = 32 << 20
	unit := spawn(t, cfg)

	code := `function f() {
		const hog = [];
		while (true) hog.push(new Array(100000).fill(1));
	}`
	require.NoError(t, unit.Submit(request(t, "job", code, nil)))

	status := exit(t, unit)
	assert.False(t, status.Killed)
	assert.True(t, status.MemoryExceeded)
	assert.Contains(t, status.Message(), "memory limit exceeded")
}
