// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *zap.Logger in their options and name it after
// themselves; the host and the attach client build the root here.
//
// Example Usage:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Logging, false))
//	logger.Component("transport").Info("Connected", zap.String("url", url))
package logging
