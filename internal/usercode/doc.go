/*
Package usercode runs untrusted code snippets in an isolated worker.

A Manager owns at most one execution unit (a worker process) and feeds it
one job at a time from an unbounded FIFO queue. The unit stays warm between
jobs; every job still runs in a fresh JavaScript realm, so nothing one job
does to globals or prototypes is visible to the next.

# Usage

	m := usercode.New(usercode.Config{JobTimeout: 2 * time.Second})
	defer m.Close(ctx)

	out := m.RunUserCode(ctx, usercode.Input{
		Code:              `function add(a, b) { return a + b }`,
		CodeLanguage:      usercode.LanguageJavaScript,
		Input:             []any{1, 2},
		ShouldSpreadInput: true,
	})
	if out.IsError() {
		// out.Error holds the message
	}

With an empty WorkerPath the current binary is re-executed as the worker,
so main must start with:

	if worker.IsChild() {
		os.Exit(worker.Main())
	}

# States

	Inactive  no unit; the first job spawns one
	Idle      unit warm, queue empty, idle timer armed
	Busy      one job in flight, job timer armed

A job timeout or a crash discards the unit and the queue continues on a
new one. The idle timer discards a warm unit nobody uses. Terminate kills
the unit and fails only the job in flight. Close fails everything left.

# Outcomes

RunUserCode never returns an error: every failure is an Output with Type
OutputTypeError. Messages callers may match on:

	Unsupported code language: <lang>
	Code is too long
	Function name not found
	Job timed out after <ms> ms
	Worker exited with code <n>[: memory limit exceeded]
	Worker terminated
	Manager closed
*/
package usercode
