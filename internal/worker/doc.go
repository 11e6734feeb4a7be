/*
Package worker implements the isolated execution unit.

A unit is a child process. The host side (ProcessSpawner, Process) starts
it, writes one Request at a time to its stdin and reads Responses from its
stdout; both directions carry newline-delimited JSON. The child side
(Main, Serve) runs every request in a fresh sandbox runtime, so the
process can stay warm while no JavaScript state outlives a job.

# Limits

A watchdog exits with ExitMemoryLimit once the heap passes the configured
ceiling, and debug.SetMemoryLimit keeps the collector aggressive below it.
On linux RLIMIT_AS backs both up against runaway address space growth. Wall-clock limits belong to the host, which kills a unit that
overstays.

# Environment

The child inherits nothing from the host environment. Its configuration
arrives as USERCODE_* variables (see package config) and EnvChild marks it
as a worker. On linux it dies with its parent (Pdeathsig).

# Exit ordering

Process delivers every response before the exit status: the reaper waits
for stdout and stderr to drain before calling Wait.
*/
package worker
