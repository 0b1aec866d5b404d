package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes harness events to an slog.Logger.
// Failures are logged at Warn, everything else at Info.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("role", event.Role.String()),
	}
	if event.Role == RoleChurn {
		attrs = append(attrs, slog.Int("worker", event.WorkerID))
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.LocalAddr != "" {
		attrs = append(attrs, slog.String("local", event.LocalAddr))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	level := slog.LevelInfo
	msg := "event"

	switch event.Kind {
	case KindConnected:
		msg = "connected"
		attrs = append(attrs, slog.Int("active", event.Count))
	case KindDisconnected:
		msg = "disconnected"
		attrs = append(attrs,
			slog.String("old_state", event.OldState.String()),
			slog.Int("active", event.Count),
		)
	case KindConnectFailed:
		msg = "connect failed"
		level = slog.LevelWarn
		attrs = append(attrs, slog.Int("active", event.Count))
	case KindBatch:
		msg = "batch"
		if event.Batch != nil {
			attrs = append(attrs,
				slog.String("op", event.Batch.Op.String()),
				slog.Int("size", event.Batch.Size),
			)
		}
		attrs = append(attrs, slog.Int("active", event.Count))
	case KindPhase:
		msg = "phase"
		attrs = append(attrs,
			slog.String("phase", event.Phase.String()),
			slog.Int("active", event.Count),
		)
	case KindError:
		msg = "connection error"
		level = slog.LevelWarn
	}

	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
