package churn

import (
	"context"
	"sync"
)

// StopSignal is a process-wide flag that is set at most once and never unset.
type StopSignal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
}

// NewStopSignal creates an unset StopSignal.
func NewStopSignal() *StopSignal {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &StopSignal{ctx: ctx, cancel: cancel}
}

// Set sets the signal with the given cause. It reports whether this call
// was the one that set it.
func (s *StopSignal) Set(cause error) bool {
	set := false
	s.once.Do(func() {
		if cause == nil {
			cause = context.Canceled
		}
		s.cancel(cause)
		set = true
	})
	return set
}

// IsSet reports whether the signal has been set.
func (s *StopSignal) IsSet() bool {
	return s.ctx.Err() != nil
}

// Done returns a channel closed when the signal is set.
func (s *StopSignal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Cause returns the cause passed to Set, or nil while unset.
func (s *StopSignal) Cause() error {
	if !s.IsSet() {
		return nil
	}
	return context.Cause(s.ctx)
}

// Context returns a context that is cancelled when the signal is set.
func (s *StopSignal) Context() context.Context {
	return s.ctx
}
