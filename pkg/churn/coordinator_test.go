package churn_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netlab-course/lbharness/pkg/acceptor"
	"github.com/netlab-course/lbharness/pkg/churn"
	"github.com/netlab-course/lbharness/pkg/log"
)

// startAcceptor runs a real accept server on loopback for end-to-end runs.
func startAcceptor(t *testing.T) *acceptor.Server {
	t.Helper()
	srv, err := acceptor.NewServer(acceptor.Config{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

// refusedAddr returns a loopback address nothing listens on.
func refusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// TestRunAllUnreachableTarget: max-connections 5, one worker, runtime 0.5s,
// timeout 0.1s against a target that refuses every connect.
func TestRunAllUnreachableTarget(t *testing.T) {
	const runtime = 500 * time.Millisecond

	report, err := churn.RunAll(context.Background(), churn.Options{
		NumWorkers: 1,
		Runtime:    runtime,
		Seed:       1,
		Worker: churn.WorkerConfig{
			Address:        refusedAddr(t),
			MaxConnections: 5,
			ConnectTimeout: 100 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	totals := report.Totals()
	assert.Greater(t, totals.Attempts, 0)
	assert.Equal(t, totals.Attempts, totals.Failed)
	assert.Equal(t, 0, totals.Connected)
	assert.Equal(t, 0, totals.PeakPool)
	assert.ErrorIs(t, report.Cause, churn.ErrRuntimeElapsed)
	assert.Less(t, report.Workers[0].Elapsed, runtime+250*time.Millisecond)
}

// TestRunAllInterrupted: runtime 10s interrupted at t=1s exits early with
// every connection closed.
func TestRunAllInterrupted(t *testing.T) {
	srv := startAcceptor(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(time.Second, cancel)

	report, err := churn.RunAll(ctx, churn.Options{
		NumWorkers: 2,
		Runtime:    10 * time.Second,
		Worker: churn.WorkerConfig{
			Address:        srv.Addr().String(),
			MaxConnections: 4,
			ConnectTimeout: time.Second,
		},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, report.Cause, churn.ErrInterrupted)
	assert.Less(t, report.Elapsed, 3*time.Second)

	totals := report.Totals()
	assert.Greater(t, totals.Connected, 0)
	assert.Equal(t, totals.Connected, totals.Closed)
	require.Eventually(t, func() bool { return srv.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunAllIndependentWorkers(t *testing.T) {
	srv := startAcceptor(t)
	rec := log.NewRecorder()

	report, err := churn.RunAll(context.Background(), churn.Options{
		NumWorkers: 3,
		Runtime:    300 * time.Millisecond,
		Seed:       7,
		Worker: churn.WorkerConfig{
			Address:        srv.Addr().String(),
			MaxConnections: 3,
			ConnectTimeout: time.Second,
			DwellMin:       5 * time.Millisecond,
			DwellMax:       10 * time.Millisecond,
			GapMin:         time.Millisecond,
			GapMax:         5 * time.Millisecond,
			Logger:         rec,
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Workers, 3)

	ids := make(map[int]bool)
	for _, s := range report.Workers {
		ids[s.WorkerID] = true
		assert.LessOrEqual(t, s.PeakPool, 3)
		assert.Equal(t, s.Connected, s.Closed)
	}
	assert.Len(t, ids, 3)

	terminated := 0
	for _, e := range rec.Filter(log.KindPhase) {
		if e.Phase == log.PhaseTerminated {
			terminated++
		}
	}
	assert.Equal(t, 3, terminated)
	require.Eventually(t, func() bool { return srv.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunAllAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := churn.RunAll(ctx, churn.Options{
		Runtime: 10 * time.Second,
		Worker: churn.WorkerConfig{
			Address: refusedAddr(t),
		},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, report.Cause, churn.ErrInterrupted)
	assert.Less(t, report.Elapsed, 2*time.Second)
}

// panicOnSecondDial opens one real connection, then panics.
type panicOnSecondDial struct {
	calls atomic.Int32
}

func (d *panicOnSecondDial) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.calls.Add(1) > 1 {
		panic("dialer exploded")
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, address)
}

func TestRunAllWorkerPanicDrainsAndReports(t *testing.T) {
	srv := startAcceptor(t)
	rec := log.NewRecorder()

	report, err := churn.RunAll(context.Background(), churn.Options{
		NumWorkers: 1,
		Runtime:    10 * time.Second,
		Seed:       7,
		Worker: churn.WorkerConfig{
			Address:        srv.Addr().String(),
			MaxConnections: 5,
			DwellMin:       10 * time.Millisecond,
			DwellMax:       10 * time.Millisecond,
			GapMin:         10 * time.Millisecond,
			GapMax:         10 * time.Millisecond,
			Dialer:         &panicOnSecondDial{},
			Logger:         rec,
		},
	})

	var panicErr *churn.WorkerPanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, 0, panicErr.WorkerID)
	assert.Contains(t, err.Error(), "dialer exploded")
	assert.ErrorIs(t, report.Cause, err)
	assert.Less(t, report.Elapsed, 5*time.Second)

	require.Len(t, report.Workers, 1)
	assert.Equal(t, 1, report.Workers[0].Connected)
	assert.Equal(t, 1, report.Workers[0].Closed)
	require.Eventually(t, func() bool { return srv.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunAllValidation(t *testing.T) {
	_, err := churn.RunAll(context.Background(), churn.Options{NumWorkers: -1})
	assert.ErrorIs(t, err, churn.ErrInvalidConfig)

	_, err = churn.RunAll(context.Background(), churn.Options{Runtime: -time.Second})
	assert.ErrorIs(t, err, churn.ErrInvalidConfig)

	_, err = churn.RunAll(context.Background(), churn.Options{Worker: churn.WorkerConfig{}})
	assert.ErrorIs(t, err, churn.ErrInvalidConfig)
}
