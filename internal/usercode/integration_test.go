package usercode

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/usercode/internal/codec"
	"github.com/GriffinCanCode/AgentOS/usercode/internal/worker"
)

// The test binary doubles as the worker executable.
func TestMain(m *testing.M) {
	if worker.IsChild() {
		os.Exit(worker.Main())
	}
	os.Exit(m.Run())
}

func newProcessManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	m := New(cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func run(t *testing.T, m *Manager, code string, input any) Output {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.RunUserCode(ctx, js(code, input))
}

func TestScenarioHello(t *testing.T) {
	m := newProcessManager(t, Config{})

	out := run(t, m, `function test() { return "Hello"; }`, map[string]any{})
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, "Hello", out.Output)

	data, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"output","output":"Hello"}`, string(data))
}

func TestScenarioJobTimeout(t *testing.T) {
	m := newProcessManager(t, Config{JobTimeout: 300 * time.Millisecond})

	// Warm the unit so the measurement excludes process start.
	run(t, m, `function warm() { return 1 }`, nil)

	start := time.Now()
	out := run(t, m, `function test() { while(true){} }`, nil)
	elapsed := time.Since(start)

	require.True(t, out.IsError())
	assert.Contains(t, out.Error, "timed out after 300 ms")
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)

	// The manager recovers on a new unit.
	out = run(t, m, `function after() { return "ok" }`, nil)
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, "ok", out.Output)
}

func TestScenarioStackOverflow(t *testing.T) {
	m := newProcessManager(t, Config{})

	out := run(t, m, `function test() { return test(); }`, nil)
	require.True(t, out.IsError())
	assert.Equal(t, "Maximum call stack size exceeded", out.Error)
}

func TestScenarioCodeTooLong(t *testing.T) {
	m := newProcessManager(t, Config{})

	code := "function test() { return '" + strings.Repeat("x", 8193) + "'; }"
	out := run(t, m, code, nil)
	require.True(t, out.IsError())
	assert.Equal(t, "Code is too long", out.Error)
	assert.Equal(t, StateInactive, m.Status().State)
}

func TestScenarioMapRoundTrip(t *testing.T) {
	m := newProcessManager(t, Config{})

	in := codec.NewMap(
		codec.Entry{Key: "foo", Value: "bar"},
		codec.Entry{Key: 42, Value: "baz"},
	)
	out := run(t, m, `function id(x) { return x }`, in)
	require.False(t, out.IsError(), out.Error)
	require.IsType(t, &codec.Map{}, out.Output)
	assert.Equal(t, []codec.Entry{
		{Key: "foo", Value: "bar"},
		{Key: 42.0, Value: "baz"},
	}, out.Output.(*codec.Map).Entries)
}

func TestScenarioThousandJobsInOrder(t *testing.T) {
	m := newProcessManager(t, Config{})

	start := time.Now()
	pending := make([]*Pending, 1000)
	for i := range pending {
		pending[i] = m.Submit(js(fmt.Sprintf(`function job() { return %d }`, i), nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, p := range pending {
		out, err := p.Wait(ctx)
		require.NoError(t, err, "job %d", i)
		require.False(t, out.IsError(), out.Error)
		assert.Equal(t, float64(i), out.Output)
	}
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, int64(1), m.Stats().Spawns)
}

func TestUnitReuseAndIdleTimeout(t *testing.T) {
	m := newProcessManager(t, Config{IdleTimeout: 200 * time.Millisecond})

	run(t, m, `function a() { return 1 }`, nil)
	first := m.Status()
	run(t, m, `function b() { return 2 }`, nil)
	second := m.Status()

	require.NotEmpty(t, first.UnitID)
	assert.Positive(t, first.PID)
	assert.Equal(t, first.UnitID, second.UnitID)
	assert.Equal(t, first.PID, second.PID)

	require.Eventually(t, func() bool {
		return m.Status().UnitID == ""
	}, 5*time.Second, 20*time.Millisecond)

	run(t, m, `function c() { return 3 }`, nil)
	third := m.Status()
	assert.NotEmpty(t, third.UnitID)
	assert.NotEqual(t, first.UnitID, third.UnitID)
}

func TestIsolationAcrossJobs(t *testing.T) {
	m := newProcessManager(t, Config{})

	out := run(t, m, `function set() {
		global.X = 42;
		Object.prototype.polluted = true;
		Array.prototype.push = function () { return -1 };
		return global.X;
	}`, nil)
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, 42.0, out.Output)

	out = run(t, m, `function get() {
		const a = [];
		a.push(1);
		return [typeof global.X, ({}).polluted === undefined, a.length];
	}`, nil)
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, []any{"undefined", true, 1.0}, out.Output)
	assert.Equal(t, int64(1), m.Stats().Spawns)
}

func TestForbiddenGlobals(t *testing.T) {
	m := newProcessManager(t, Config{})

	for _, name := range []string{"process", "require", "fetch", "setTimeout", "setInterval", "module"} {
		t.Run(name, func(t *testing.T) {
			out := run(t, m, fmt.Sprintf(`function lookup() { return %s; }`, name), nil)
			require.True(t, out.IsError())
			assert.Contains(t, out.Error, name+" is not defined")
		})
	}

	out := run(t, m, `function lookup() { return import("fs"); }`, nil)
	assert.True(t, out.IsError())
}

func TestUserErrors(t *testing.T) {
	m := newProcessManager(t, Config{})

	tests := []struct {
		name string
		code string
		want string
	}{
		{"throw", `function f() { throw new Error("bad input") }`, "bad input"},
		{"async reject", `async function f() { throw new TypeError("nope") }`, "nope"},
		{"syntax", `function f() { return ( }`, "SyntaxError"},
		{"no function", `const f = () => 1`, "Function name not found"},
		{"error without message", `function f() { throw new Error() }`, ""},
		{"empty string", `function f() { throw "" }`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, m, tt.code, nil)
			require.True(t, out.IsError())
			assert.Equal(t, OutputTypeError, out.Type)
			assert.Nil(t, out.Output)
			if tt.want == "" {
				assert.Empty(t, out.Error)
				return
			}
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestRichValues(t *testing.T) {
	m := newProcessManager(t, Config{})

	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	when := time.Date(2024, 2, 29, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		code  string
		input any
		want  any
	}{
		{"bigint", `function f(x) { return x + 1n }`, big1, new(big.Int).Add(big1, big.NewInt(1))},
		{"date", `function f(d) { return new Date(d.getTime() + 1000) }`, when, when.Add(time.Second)},
		{"bytes", `function f(b) { return b.map(x => x * 2) }`, []byte{1, 2, 3}, []byte{2, 4, 6}},
		{"set", `function f(s) { s.add("c"); return s }`, codec.NewSet("a", "b"), codec.NewSet("a", "b", "c")},
		{"async", `async function f(x) { return await Promise.resolve(x * 3) }`, 5, 15.0},
		{"unicode", `function f(s) { return s + "✓" }`, "héllo 👋", "héllo 👋✓"},
		{"symbol output", `function f() { return Symbol("s") }`, nil, codec.Undefined},
		{"new set", `function f() { return new Set([1, 2, 1]) }`, nil, codec.NewSet(1.0, 2.0)},
		{"map of objects", `function f() { return new Map([["k", { v: [1] }]]) }`, nil, codec.NewMap(codec.Entry{Key: "k", Value: map[string]any{"v": []any{1.0}}})},
		{"async map", `async function f() { await null; return new Map([[1, "one"]]) }`, nil, codec.NewMap(codec.Entry{Key: 1.0, Value: "one"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, m, tt.code, tt.input)
			require.False(t, out.IsError(), out.Error)
			assert.Equal(t, tt.want, out.Output)
		})
	}
}

func TestSpreadInput(t *testing.T) {
	m := newProcessManager(t, Config{})

	in := Input{
		Code:              `function add(a, b, c) { return [a + b, c] }`,
		CodeLanguage:      LanguageJavaScript,
		Input:             []any{1, 2},
		ShouldSpreadInput: true,
	}
	out := m.RunUserCode(context.Background(), in)
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, []any{3.0, codec.Undefined}, out.Output)
}

func TestURLValues(t *testing.T) {
	m := newProcessManager(t, Config{})

	out := run(t, m, `function f() {
		const u = new URL("/path?q=1", "https://Example.com");
		return [u.href, u.protocol, u.hostname];
	}`, nil)
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, []any{"https://example.com/path?q=1", "https:", "example.com"}, out.Output)
}

func TestCyclicOutput(t *testing.T) {
	m := newProcessManager(t, Config{})

	out := run(t, m, `function f() { const o = { name: "root" }; o.self = o; return o }`, nil)
	require.False(t, out.IsError(), out.Error)

	root, ok := out.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "root", root["name"])
	self, ok := root["self"].(map[string]any)
	require.True(t, ok)
	self["marker"] = true
	assert.Equal(t, true, root["marker"])
}

func TestMemoryLimit(t *testing.T) {
	m := newProcessManager(t, Config{MemoryLimitBytes: 32 << 20, JobTimeout: 10 * time.Second})

	out := run(t, m, `function hog() {
		const chunks = [];
		while (true) chunks.push(new Array(100000).fill(Math.random()));
	}`, nil)
	require.True(t, out.IsError())
	assert.Contains(t, out.Error, "Worker exited with code")
	assert.Contains(t, out.Error, "memory limit exceeded")

	out = run(t, m, `function after() { return "recovered" }`, nil)
	require.False(t, out.IsError(), out.Error)
	assert.Equal(t, "recovered", out.Output)
	assert.Equal(t, int64(1), m.Stats().Crashes)
}
