// Package churn implements the active side of the load-balancer harness:
// workers that keep a pool of outbound TCP connections and randomly open and
// close them over a bounded runtime window.
//
// # Worker Phases
//
// Every Worker runs the same sequence:
//
//  1. Warm-up: open a random number of connections in [1, MaxConnections].
//  2. Churn: until stopped or past the deadline, repeat
//     open [1, MaxConnections-size] if below the ceiling,
//     dwell U[2s, 5s],
//     close [1, min(3, size)] chosen uniformly without replacement,
//     pause U[0.1s, 2s].
//  3. Drain: close every connection still in the pool.
//  4. Terminated.
//
// Connect failures are logged and contribute zero connections; they are never
// retried. Close failures are logged and the connection is considered closed.
//
// # Ownership
//
// A Pool belongs to exactly one Worker goroutine and is not locked. Workers
// share nothing but the StopSignal and the deadline.
//
// # Determinism
//
// All random decisions draw from WorkerConfig.Rand. Two workers built with
// the same seed, a Dialer with the same outcomes and a Sleeper that does not
// depend on wall-clock time produce the same sequence of batch sizes.
//
// # Cancellation
//
// The StopSignal is cooperative. Workers check it at the top of the churn
// loop and between connect attempts, and sleeps wake early when it is set,
// so a stop takes effect within one churn iteration.
package churn
