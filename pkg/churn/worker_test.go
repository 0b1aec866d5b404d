package churn_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/netlab-course/lbharness/pkg/churn"
	"github.com/netlab-course/lbharness/pkg/log"
)

const target = "10.0.1.2:3000"

var errRefused = errors.New("connection refused")

// ---------------------------------------------------------------------------
// stubDialer
// ---------------------------------------------------------------------------

// trackedConn is one end of a net.Pipe that remembers whether it was closed.
type trackedConn struct {
	net.Conn
	peer     net.Conn
	closed   atomic.Bool
	closeErr error
}

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	_ = c.peer.Close()
	_ = c.Conn.Close()
	return c.closeErr
}

type stubDialer struct {
	mock.Mock

	mu       sync.Mutex
	conns    []*trackedConn
	closeErr error
}

func (d *stubDialer) DialContext(_ context.Context, network, address string) (net.Conn, error) {
	ret := d.Called(network, address)
	if err := ret.Error(0); err != nil {
		return nil, err
	}
	a, b := net.Pipe()
	c := &trackedConn{Conn: a, peer: b, closeErr: d.closeErr}

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// open returns how many dialed connections are still open.
func (d *stubDialer) open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.closed.Load() {
			n++
		}
	}
	return n
}

func (d *stubDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func succeedingDialer() *stubDialer {
	d := &stubDialer{}
	d.On("DialContext", "tcp", target).Return(nil)
	return d
}

func failingDialer() *stubDialer {
	d := &stubDialer{}
	d.On("DialContext", "tcp", target).Return(errRefused)
	return d
}

// blockingDialer never completes a handshake; it waits for ctx.
type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// ---------------------------------------------------------------------------
// stepSleeper
// ---------------------------------------------------------------------------

// stepSleeper returns immediately and sets the stop signal on its limit-th call,
// so a run lasts a fixed number of sleeps regardless of wall-clock time.
type stepSleeper struct {
	mu    sync.Mutex
	stop  *churn.StopSignal
	limit int
	slept []time.Duration
}

func (s *stepSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	if len(s.slept) >= s.limit {
		s.stop.Set(churn.ErrInterrupted)
		return context.Canceled
	}
	return nil
}

func (s *stepSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// runSteps runs a worker for the given number of sleeps.
func runSteps(t *testing.T, cfg churn.WorkerConfig, steps int) (churn.Stats, *stepSleeper) {
	t.Helper()

	stop := churn.NewStopSignal()
	sleeper := &stepSleeper{stop: stop, limit: steps}
	cfg.Sleeper = sleeper
	if cfg.Address == "" {
		cfg.Address = target
	}

	w, err := churn.NewWorker(cfg)
	require.NoError(t, err)

	stats := w.Run(stop, time.Now().Add(time.Hour))
	assert.Equal(t, log.PhaseTerminated, w.Phase())
	return stats, sleeper
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWorkerDeterministicUnderSeed(t *testing.T) {
	run := func() (churn.Stats, []time.Duration) {
		stats, sleeper := runSteps(t, churn.WorkerConfig{
			MaxConnections: 8,
			Rand:           churn.NewRand(42, 0),
			Dialer:         succeedingDialer(),
		}, 30)
		return stats, sleeper.durations()
	}

	first, firstSleeps := run()
	second, secondSleeps := run()

	require.NotEmpty(t, first.Batches)
	assert.Equal(t, first.Batches, second.Batches)
	assert.Equal(t, firstSleeps, secondSleeps)
	assert.Equal(t, first.Connected, second.Connected)
	assert.Equal(t, first.Closed, second.Closed)
}

func TestWorkerBatchAndSleepRanges(t *testing.T) {
	const maxConns = 6
	stats, sleeper := runSteps(t, churn.WorkerConfig{
		MaxConnections: maxConns,
		Rand:           churn.NewRand(9, 0),
		Dialer:         succeedingDialer(),
	}, 50)

	require.NotEmpty(t, stats.Batches)
	warmUp := stats.Batches[0]
	assert.Equal(t, log.BatchOpen, warmUp.Op)
	assert.GreaterOrEqual(t, warmUp.Size, 1)
	assert.LessOrEqual(t, warmUp.Size, maxConns)

	for _, b := range stats.Batches[1:] {
		assert.GreaterOrEqual(t, b.Size, 1)
		switch b.Op {
		case log.BatchOpen:
			assert.LessOrEqual(t, b.Size, maxConns)
		case log.BatchClose:
			assert.LessOrEqual(t, b.Size, churn.DefaultMaxCloseBatch)
		}
	}

	// Sleeps alternate dwell and gap.
	for i, d := range sleeper.durations() {
		if i%2 == 0 {
			assert.GreaterOrEqual(t, d, churn.DefaultDwellMin)
			assert.LessOrEqual(t, d, churn.DefaultDwellMax)
		} else {
			assert.GreaterOrEqual(t, d, churn.DefaultGapMin)
			assert.LessOrEqual(t, d, churn.DefaultGapMax)
		}
	}
}

func TestWorkerPoolBound(t *testing.T) {
	const maxConns = 5
	rec := log.NewRecorder()
	stats, _ := runSteps(t, churn.WorkerConfig{
		MaxConnections: maxConns,
		Rand:           churn.NewRand(3, 0),
		Dialer:         succeedingDialer(),
		Logger:         rec,
	}, 60)

	assert.LessOrEqual(t, stats.PeakPool, maxConns)
	assert.Greater(t, stats.PeakPool, 0)
	for _, e := range rec.Events() {
		assert.GreaterOrEqual(t, e.Count, 0)
		assert.LessOrEqual(t, e.Count, maxConns)
	}
}

func TestWorkerDrainClosesEverything(t *testing.T) {
	d := succeedingDialer()
	rec := log.NewRecorder()
	stats, _ := runSteps(t, churn.WorkerConfig{
		MaxConnections: 10,
		Rand:           churn.NewRand(11, 0),
		Dialer:         d,
		Logger:         rec,
	}, 10)

	assert.Greater(t, d.dialed(), 0)
	assert.Equal(t, 0, d.open(), "every dialed connection must be closed after Run")
	assert.Equal(t, stats.Connected, stats.Closed)
	assert.Equal(t, stats.Connected, d.dialed())

	phases := rec.Filter(log.KindPhase)
	require.Len(t, phases, 4)
	assert.Equal(t, log.PhaseWarmUp, phases[0].Phase)
	assert.Equal(t, log.PhaseChurn, phases[1].Phase)
	assert.Equal(t, log.PhaseDrain, phases[2].Phase)
	assert.Equal(t, log.PhaseTerminated, phases[3].Phase)
	assert.Equal(t, 0, phases[3].Count)
}

func TestWorkerConnectFailuresYieldNothing(t *testing.T) {
	d := failingDialer()
	rec := log.NewRecorder()
	stats, _ := runSteps(t, churn.WorkerConfig{
		MaxConnections: 5,
		Rand:           churn.NewRand(5, 0),
		Dialer:         d,
		Logger:         rec,
	}, 8)

	assert.Greater(t, stats.Attempts, 0)
	assert.Equal(t, stats.Attempts, stats.Failed)
	assert.Equal(t, 0, stats.Connected)
	assert.Equal(t, 0, stats.PeakPool)
	assert.Equal(t, 0, stats.Closed)
	assert.Equal(t, 0, stats.Timeouts)
	assert.Empty(t, rec.Filter(log.KindDisconnected))
	d.AssertNumberOfCalls(t, "DialContext", stats.Attempts)

	failures := rec.Filter(log.KindConnectFailed)
	require.Len(t, failures, stats.Failed)
	var cerr *churn.ConnectError
	require.True(t, errors.As(failures[0].Err, &cerr))
	assert.Equal(t, target, cerr.Addr)
	assert.ErrorIs(t, cerr, errRefused)
}

func TestWorkerMixedOutcomes(t *testing.T) {
	d := &stubDialer{}
	d.On("DialContext", "tcp", target).Return(errRefused).Times(2)
	d.On("DialContext", "tcp", target).Return(nil)

	stats, _ := runSteps(t, churn.WorkerConfig{
		MaxConnections: 4,
		Rand:           churn.NewRand(8, 0),
		Dialer:         d,
	}, 12)

	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, stats.Attempts-2, stats.Connected)
	assert.Equal(t, 0, d.open())
}

func TestWorkerConnectTimeout(t *testing.T) {
	rec := log.NewRecorder()
	stats, _ := runSteps(t, churn.WorkerConfig{
		MaxConnections: 2,
		ConnectTimeout: 20 * time.Millisecond,
		Rand:           churn.NewRand(1, 0),
		Dialer:         blockingDialer{},
		Logger:         rec,
	}, 2)

	assert.Greater(t, stats.Timeouts, 0)
	assert.Equal(t, stats.Failed, stats.Timeouts)

	var cerr *churn.ConnectError
	failures := rec.Filter(log.KindConnectFailed)
	require.NotEmpty(t, failures)
	require.True(t, errors.As(failures[0].Err, &cerr))
	assert.True(t, cerr.Timeout())
}

func TestWorkerCloseErrorTreatedAsClosed(t *testing.T) {
	d := succeedingDialer()
	d.closeErr = errors.New("reset by peer")
	rec := log.NewRecorder()

	stats, _ := runSteps(t, churn.WorkerConfig{
		MaxConnections: 3,
		Rand:           churn.NewRand(2, 0),
		Dialer:         d,
		Logger:         rec,
	}, 6)

	assert.Equal(t, stats.Connected, stats.Closed)
	for _, e := range rec.Filter(log.KindDisconnected) {
		assert.Error(t, e.Err)
		assert.Equal(t, log.StateClosed, e.NewState)
	}
}

func TestWorkerStopsWithinOneIteration(t *testing.T) {
	d := succeedingDialer()
	w, err := churn.NewWorker(churn.WorkerConfig{
		Address:        target,
		MaxConnections: 5,
		Dialer:         d,
	})
	require.NoError(t, err)

	stop := churn.NewStopSignal()
	done := make(chan churn.Stats, 1)
	go func() { done <- w.Run(stop, time.Now().Add(time.Minute)) }()

	time.Sleep(100 * time.Millisecond)
	stop.Set(churn.ErrInterrupted)

	// One iteration is at most ConnectTimeout + DwellMax + GapMax.
	bound := churn.DefaultConnectTimeout + churn.DefaultDwellMax + churn.DefaultGapMax
	select {
	case stats := <-done:
		assert.Less(t, stats.Elapsed, bound)
		assert.Equal(t, stats.Connected, stats.Closed)
		assert.Equal(t, 0, d.open())
	case <-time.After(bound):
		t.Fatal("worker did not terminate within one churn iteration")
	}
}

func TestWorkerHonorsDeadline(t *testing.T) {
	d := succeedingDialer()
	w, err := churn.NewWorker(churn.WorkerConfig{
		Address: target,
		Dialer:  d,
	})
	require.NoError(t, err)

	start := time.Now()
	stats := w.Run(churn.NewStopSignal(), start.Add(200*time.Millisecond))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, d.open())
	assert.Equal(t, stats.Connected, stats.Closed)
}

func TestWorkerStoppedBeforeStart(t *testing.T) {
	d := succeedingDialer()
	w, err := churn.NewWorker(churn.WorkerConfig{Address: target, Dialer: d})
	require.NoError(t, err)

	stop := churn.NewStopSignal()
	stop.Set(churn.ErrInterrupted)
	stats := w.Run(stop, time.Now().Add(time.Minute))

	assert.Equal(t, 0, stats.Attempts)
	assert.Equal(t, log.PhaseTerminated, w.Phase())
	d.AssertNotCalled(t, "DialContext", mock.Anything, mock.Anything)
}

func TestNewWorkerValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  churn.WorkerConfig
	}{
		{"missing address", churn.WorkerConfig{}},
		{"negative max", churn.WorkerConfig{Address: target, MaxConnections: -1}},
		{"negative timeout", churn.WorkerConfig{Address: target, ConnectTimeout: -time.Second}},
		{"inverted dwell", churn.WorkerConfig{Address: target, DwellMin: 3 * time.Second, DwellMax: time.Second}},
		{"inverted gap", churn.WorkerConfig{Address: target, GapMin: time.Second, GapMax: time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := churn.NewWorker(tt.cfg)
			assert.ErrorIs(t, err, churn.ErrInvalidConfig)
		})
	}
}
