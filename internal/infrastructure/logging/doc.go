// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: console output for human readability
//
// Logs go to stderr by default. Worker processes reserve stdout for the
// request/response protocol, and the parent forwards their stderr lines into
// its own logger.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//		return err
//	}
//	logger.Info("Unit spawned", zap.String("unit", id), zap.Int("pid", pid))
package logging
