package churn

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Stop causes and configuration errors.
var (
	// ErrRuntimeElapsed is the stop cause when the runtime window ends.
	ErrRuntimeElapsed = errors.New("runtime elapsed")

	// ErrInterrupted is the stop cause when the operator cancels the run.
	ErrInterrupted = errors.New("interrupted")

	ErrInvalidConfig = errors.New("invalid churn config")
)

// ConnectError reports a failed outbound connect attempt.
type ConnectError struct {
	// Addr is the target address.
	Addr string

	// Err is the underlying dial error.
	Err error
}

func (e *ConnectError) Error() string {
	if e.Timeout() {
		return "connect " + e.Addr + ": timeout: " + e.Err.Error()
	}
	return "connect " + e.Addr + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt ran out of time rather than being
// refused.
func (e *ConnectError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// WorkerPanicError is returned by RunAll when a worker panics. The worker's
// pool is still drained before RunAll returns.
type WorkerPanicError struct {
	WorkerID int
	Value    any
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("churn worker %d panicked: %v", e.WorkerID, e.Value)
}
