// Package config carries worker process configuration across the process
// boundary.
//
// The manager builds a Config in-process and hands it to each spawned worker
// as environment variables (Environ). The worker reads them back with Load.
// Nothing else in the module reads the environment.
//
// Environment Variables:
//   - USERCODE_MEMORY_LIMIT_BYTES, USERCODE_MAX_CALL_STACK
//   - USERCODE_WATCHDOG_INTERVAL, USERCODE_CONSOLE
//   - USERCODE_LOG_LEVEL, USERCODE_LOG_DEV
package config
