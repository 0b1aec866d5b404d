// Package log provides structured event logging for the load-balancer harness.
//
// This package defines the Logger interface and the Event type used to report
// connection lifecycle activity from both sides of the harness: the accept
// server and the churn workers. It is separate from operational logging
// (slog) - events carry enough context (addresses, counts, worker IDs) to
// reconstruct a churn timeline after the fact.
//
// # Basic Usage
//
// Components accept a Logger in their config:
//
//	// Console output via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// Console output plus an in-memory copy for assertions
//	rec := log.NewRecorder()
//	cfg.Logger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), rec)
//
// # Event Kinds
//
//   - KindConnected / KindDisconnected: a connection changed lifecycle state
//   - KindConnectFailed: an outbound connect attempt yielded nothing
//   - KindBatch: a worker decided on an open or close batch
//   - KindPhase: a worker moved between warm-up, churn, drain and terminated
//   - KindError: a local I/O error on an established connection
package log
