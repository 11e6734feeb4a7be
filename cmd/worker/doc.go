// Package main is the standalone user-code worker.
//
// A usercode.Manager normally re-executes its own binary as the worker.
// Hosts that prefer a separate, smaller executable point
// usercode.Config.WorkerPath at this one instead.
//
// Protocol:
//   - stdin: newline-delimited JSON requests, one job each
//   - stdout: one JSON response per request, in order
//   - stderr: JSON logs, forwarded by the host
//
// Configuration comes only from USERCODE_* environment variables, which
// the host sets; see internal/infrastructure/config.
//
// Exit codes:
//
//	0    stdin closed or SIGTERM
//	76   protocol failure
//	78   invalid configuration
//	134  memory limit exceeded
package main
