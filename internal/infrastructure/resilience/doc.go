/*
Package resilience provides a circuit breaker for worker spawning.

# Overview

Starting a worker process is the one operation of the manager that depends on
the host: the worker binary must exist and fork/exec must succeed. When it
keeps failing, the breaker opens and jobs are settled with an error without
another attempt, until the cooldown lets a single trial spawn through.

# States

  - Closed: spawns proceed; consecutive failures are counted
  - Open: spawns are refused with ErrCircuitOpen
  - Half-Open: one trial spawn; success closes, failure reopens

# Usage

	breaker := resilience.New("spawn", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         5 * time.Second,
	})

	unit, err := resilience.Execute(breaker, func() (worker.Unit, error) {
		return spawner.Spawn(ctx)
	})
*/
package resilience
