package churn

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/netlab-course/lbharness/pkg/log"
	"github.com/netlab-course/lbharness/pkg/metrics"
)

// Defaults for churn timing.
const (
	DefaultMaxConnections = 10
	DefaultConnectTimeout = 5 * time.Second

	// DefaultDwellMin and DefaultDwellMax bound the sleep between the open
	// and close steps, modelling session dwell time.
	DefaultDwellMin = 2 * time.Second
	DefaultDwellMax = 5 * time.Second

	// DefaultGapMin and DefaultGapMax bound the sleep after the close step.
	DefaultGapMin = 100 * time.Millisecond
	DefaultGapMax = 2 * time.Second

	// DefaultMaxCloseBatch caps how many connections one close step tears down.
	DefaultMaxCloseBatch = 3
)

// WorkerConfig configures a churn worker.
type WorkerConfig struct {
	// ID identifies the worker in logs and metrics.
	ID int

	// Address is the target "host:port".
	Address string

	// MaxConnections is the pool ceiling (default: 10).
	MaxConnections int

	// ConnectTimeout bounds each connect attempt (default: 5s).
	ConnectTimeout time.Duration

	// DwellMin/DwellMax bound the sleep after an open step.
	DwellMin, DwellMax time.Duration

	// GapMin/GapMax bound the sleep after a close step.
	GapMin, GapMax time.Duration

	// MaxCloseBatch caps the close step size (default: 3).
	MaxCloseBatch int

	// Rand is the source of every random decision (default: time-seeded).
	Rand *rand.Rand

	// Dialer opens connections (default: *net.Dialer).
	Dialer Dialer

	// Sleeper implements the churn sleeps (default: TimerSleeper).
	Sleeper Sleeper

	// Logger receives connection and batch events (optional).
	Logger log.Logger

	// Metrics records connect attempts and pool size (optional).
	Metrics *metrics.Churn
}

// Batch is one open or close decision, recorded in decision order.
type Batch struct {
	Op   log.BatchOp
	Size int
}

// Stats summarizes a finished worker run.
type Stats struct {
	WorkerID  int
	Attempts  int
	Connected int
	Failed    int
	Timeouts  int
	Closed    int

	// PeakPool is the largest pool size observed.
	PeakPool int

	// Batches lists every batch decision, warm-up included.
	Batches []Batch

	Elapsed time.Duration
}

// Worker drives one pool of churning connections.
type Worker struct {
	config WorkerConfig
	logger log.Logger
	pool   *Pool
	phase  log.Phase
	stats  Stats
}

// NewWorker creates a worker, applying defaults to unset fields.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = DefaultMaxConnections
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.DwellMin == 0 && config.DwellMax == 0 {
		config.DwellMin, config.DwellMax = DefaultDwellMin, DefaultDwellMax
	}
	if config.GapMin == 0 && config.GapMax == 0 {
		config.GapMin, config.GapMax = DefaultGapMin, DefaultGapMax
	}
	if config.MaxCloseBatch == 0 {
		config.MaxCloseBatch = DefaultMaxCloseBatch
	}
	if config.Rand == nil {
		config.Rand = NewRand(0, config.ID)
	}
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{}
	}
	if config.Sleeper == nil {
		config.Sleeper = TimerSleeper{}
	}

	if err := validateWorkerConfig(config); err != nil {
		return nil, err
	}

	return &Worker{
		config: config,
		logger: log.OrNoop(config.Logger),
		pool:   NewPool(config.MaxConnections),
		stats:  Stats{WorkerID: config.ID},
	}, nil
}

func validateWorkerConfig(c WorkerConfig) error {
	switch {
	case c.Address == "":
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	case c.MaxConnections < 0:
		return fmt.Errorf("%w: max connections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	case c.ConnectTimeout < 0:
		return fmt.Errorf("%w: connect timeout must be positive, got %s", ErrInvalidConfig, c.ConnectTimeout)
	case c.DwellMin < 0 || c.DwellMax < c.DwellMin:
		return fmt.Errorf("%w: dwell range [%s, %s]", ErrInvalidConfig, c.DwellMin, c.DwellMax)
	case c.GapMin < 0 || c.GapMax < c.GapMin:
		return fmt.Errorf("%w: gap range [%s, %s]", ErrInvalidConfig, c.GapMin, c.GapMax)
	case c.MaxCloseBatch < 0:
		return fmt.Errorf("%w: max close batch must be positive, got %d", ErrInvalidConfig, c.MaxCloseBatch)
	}
	return nil
}

// Phase returns the current phase. It is only meaningful from the goroutine
// running the worker or after Run returns.
func (w *Worker) Phase() log.Phase { return w.phase }

// Run executes warm-up, churn and drain, and returns once every connection
// it opened is closed. The churn loop ends when stop is set or the deadline
// passes.
func (w *Worker) Run(stop *StopSignal, deadline time.Time) Stats {
	start := time.Now()
	ctx, cancel := context.WithDeadline(stop.Context(), deadline)
	defer cancel()

	w.enter(log.PhaseWarmUp)
	w.openBatch(ctx, uniformInt(w.config.Rand, w.config.MaxConnections))

	w.enter(log.PhaseChurn)
	w.churn(ctx, stop, deadline)

	w.enter(log.PhaseDrain)
	for _, c := range w.pool.Drain() {
		w.disconnect(c)
	}

	w.stats.Elapsed = time.Since(start)
	w.enter(log.PhaseTerminated)
	return w.stats
}

// abort closes whatever a panicking Run left open.
func (w *Worker) abort(start time.Time) Stats {
	for _, c := range w.pool.Drain() {
		w.disconnect(c)
	}
	w.stats.Elapsed = time.Since(start)
	w.enter(log.PhaseTerminated)
	return w.stats
}

func (w *Worker) churn(ctx context.Context, stop *StopSignal, deadline time.Time) {
	rng := w.config.Rand

	for !stop.IsSet() && time.Now().Before(deadline) {
		if room := w.pool.Room(); room > 0 {
			w.openBatch(ctx, uniformInt(rng, room))
		}

		if err := w.config.Sleeper.Sleep(ctx, uniformDuration(rng, w.config.DwellMin, w.config.DwellMax)); err != nil {
			return
		}

		if size := w.pool.Len(); size > 0 {
			w.closeBatch(uniformInt(rng, min(w.config.MaxCloseBatch, size)))
		}

		if err := w.config.Sleeper.Sleep(ctx, uniformDuration(rng, w.config.GapMin, w.config.GapMax)); err != nil {
			return
		}
	}
}

// openBatch makes n connect attempts. Remaining attempts are skipped once
// ctx is done, since they could only fail.
func (w *Worker) openBatch(ctx context.Context, n int) {
	w.recordBatch(log.BatchOpen, n)

	for range n {
		if ctx.Err() != nil || w.pool.Room() == 0 {
			return
		}

		c, err := w.connect(ctx)
		if err != nil {
			continue
		}
		if !w.pool.Add(c) {
			w.disconnect(c)
			continue
		}
		w.stats.PeakPool = max(w.stats.PeakPool, w.pool.Len())
		w.config.Metrics.PoolSize(w.config.ID, w.pool.Len())
		w.emit(log.Event{
			Kind:         log.KindConnected,
			ConnectionID: c.ID(),
			LocalAddr:    addrString(c.LocalAddr()),
			RemoteAddr:   addrString(c.RemoteAddr()),
			OldState:     log.StateConnecting,
			NewState:     c.State(),
		})
	}
}

// closeBatch closes n pooled connections chosen without replacement.
func (w *Worker) closeBatch(n int) {
	w.recordBatch(log.BatchClose, n)
	for _, c := range w.pool.TakeRandom(w.config.Rand, n) {
		w.disconnect(c)
	}
}

// connect makes one attempt bounded by ConnectTimeout.
func (w *Worker) connect(ctx context.Context) (*Conn, error) {
	w.stats.Attempts++

	dialCtx, cancel := context.WithTimeout(ctx, w.config.ConnectTimeout)
	defer cancel()

	nc, err := w.config.Dialer.DialContext(dialCtx, "tcp", w.config.Address)
	if err != nil {
		cerr := &ConnectError{Addr: w.config.Address, Err: err}
		w.stats.Failed++
		if cerr.Timeout() {
			w.stats.Timeouts++
		}
		w.config.Metrics.ConnectAttempt(w.config.ID, false)
		w.emit(log.Event{
			Kind:       log.KindConnectFailed,
			RemoteAddr: w.config.Address,
			OldState:   log.StateConnecting,
			NewState:   log.StateClosed,
			Err:        cerr,
		})
		return nil, cerr
	}

	w.stats.Connected++
	w.config.Metrics.ConnectAttempt(w.config.ID, true)
	return newConn(nc), nil
}

// disconnect closes c. A close error is logged and c is treated as closed.
func (w *Worker) disconnect(c *Conn) {
	oldState := c.State()
	err := c.Close()
	w.stats.Closed++
	w.config.Metrics.Disconnect(w.config.ID)
	w.config.Metrics.PoolSize(w.config.ID, w.pool.Len())

	w.emit(log.Event{
		Kind:         log.KindDisconnected,
		ConnectionID: c.ID(),
		LocalAddr:    addrString(c.LocalAddr()),
		RemoteAddr:   addrString(c.RemoteAddr()),
		OldState:     oldState,
		NewState:     c.State(),
		Err:          err,
	})
}

func (w *Worker) recordBatch(op log.BatchOp, n int) {
	w.stats.Batches = append(w.stats.Batches, Batch{Op: op, Size: n})
	w.emit(log.Event{
		Kind:  log.KindBatch,
		Batch: &log.BatchEvent{Op: op, Size: n},
	})
}

func (w *Worker) enter(p log.Phase) {
	w.phase = p
	w.emit(log.Event{Kind: log.KindPhase, Phase: p})
}

// emit fills the worker fields common to every event.
func (w *Worker) emit(e log.Event) {
	e.Timestamp = time.Now()
	e.Role = log.RoleChurn
	e.WorkerID = w.config.ID
	e.Count = w.pool.Len()
	w.logger.Log(e)
}
