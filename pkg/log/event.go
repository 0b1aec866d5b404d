package log

import "time"

// Event is a single harness log record.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time

	// ConnectionID identifies the connection (UUID), empty for worker events.
	ConnectionID string

	// Role is the side of the harness that produced the event.
	Role Role

	// Kind classifies the event.
	Kind Kind

	// WorkerID is the churn worker index (client side only).
	WorkerID int

	// LocalAddr and RemoteAddr are the connection endpoints (IP:port).
	LocalAddr  string
	RemoteAddr string

	// OldState and NewState describe a connection state transition.
	OldState State
	NewState State

	// Phase is the worker phase for KindPhase events.
	Phase Phase

	// Batch is set for KindBatch events.
	Batch *BatchEvent

	// Count is the number of live connections after the event
	// (registry size on the server, pool size on a worker).
	Count int

	// Err is the failure for KindConnectFailed and KindError events.
	Err error
}

// BatchEvent describes a churn batch decision.
type BatchEvent struct {
	Op   BatchOp
	Size int
}

// Role identifies which process emitted an event.
type Role uint8

const (
	// RoleAcceptor is the accept server.
	RoleAcceptor Role = iota
	// RoleChurn is a churn worker.
	RoleChurn
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleAcceptor:
		return "ACCEPTOR"
	case RoleChurn:
		return "CHURN"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies an event.
type Kind uint8

const (
	KindConnected Kind = iota
	KindDisconnected
	KindConnectFailed
	KindBatch
	KindPhase
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "CONNECTED"
	case KindDisconnected:
		return "DISCONNECTED"
	case KindConnectFailed:
		return "CONNECT_FAILED"
	case KindBatch:
		return "BATCH"
	case KindPhase:
		return "PHASE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// State is the lifecycle state of a single TCP session.
type State uint8

const (
	StateConnecting State = iota
	StateEstablished
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Phase is the state of a churn worker.
type Phase uint8

const (
	PhaseWarmUp Phase = iota
	PhaseChurn
	PhaseDrain
	PhaseTerminated
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWarmUp:
		return "WARM_UP"
	case PhaseChurn:
		return "CHURN"
	case PhaseDrain:
		return "DRAIN"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// BatchOp is the direction of a churn batch.
type BatchOp uint8

const (
	// BatchOpen opens new connections.
	BatchOpen BatchOp = iota
	// BatchClose closes pooled connections.
	BatchClose
)

// String returns the batch operation name.
func (o BatchOp) String() string {
	switch o {
	case BatchOpen:
		return "OPEN"
	case BatchClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}
