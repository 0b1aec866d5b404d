package acceptor

import "errors"

// Server errors.
var (
	ErrServerRunning = errors.New("server already running")
	ErrInvalidConfig = errors.New("invalid server config")
)

// BindError reports a failure to bind or listen on the configured address.
type BindError struct {
	// Addr is the address that could not be bound.
	Addr string

	// Err is the underlying listen error.
	Err error
}

func (e *BindError) Error() string {
	return "bind " + e.Addr + ": " + e.Err.Error()
}

func (e *BindError) Unwrap() error {
	return e.Err
}
