// Package logger provides the structured logging interface used
// throughout goapn: the Manager, cache and promise stores, and business
// registry all log through a Logger rather than the standard log
// package directly, so a host application can swap in its own
// implementation (e.g. zap, zerolog) by satisfying this interface.
//
// # Log levels
//
//   - DEBUG: per-attempt detail (cache hit/miss, retry scheduling)
//   - INFO: lifecycle events (business registered, promise replayed)
//   - WARN: degraded-but-recovered conditions (DB write swallowed)
//   - ERROR: terminal failures surfaced to the caller
//
// # Contextual logging
//
// With/WithField/WithFields return a child logger carrying extra
// fields, typically businessIdentifier or promiseKey:
//
//	reqLog := log.WithField("businessIdentifier", "orders")
//	reqLog.Info("enlisted request in promise store")
//
// SimpleLogger is the default implementation; its level is read from
// core.EnvLogLevel via GetLogLevel.
package logger
