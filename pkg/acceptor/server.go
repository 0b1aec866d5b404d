package acceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/netlab-course/lbharness/pkg/log"
	"github.com/netlab-course/lbharness/pkg/metrics"
)

// Defaults for the accept server.
const (
	DefaultAddress       = "0.0.0.0:8000"
	DefaultBufferSize    = 1024
	DefaultMaxConcurrent = 100
)

// acceptRetryDelay throttles the accept loop after a non-fatal accept error
// (e.g. EMFILE) so it does not spin.
const acceptRetryDelay = 50 * time.Millisecond

// Config configures the accept server.
type Config struct {
	// Address to listen on (e.g., "0.0.0.0:8000" or "127.0.0.1:0").
	Address string

	// BufferSize is the read buffer size per connection (default: 1024).
	BufferSize int

	// MaxConcurrent is the admission ceiling (default: 100).
	MaxConcurrent int

	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// Logger receives connect/disconnect events (optional).
	Logger log.Logger

	// Metrics records admission counters (optional).
	Metrics *metrics.Acceptor

	// OnConnect is called after a connection has been admitted and registered.
	OnConnect func(conn *Conn)

	// OnDisconnect is called after a connection has been closed and deregistered,
	// before its admission slot is released.
	OnDisconnect func(conn *Conn)
}

// Server accepts and drains TCP connections under an admission ceiling.
type Server struct {
	config   Config
	logger   log.Logger
	gate     *semaphore.Weighted
	registry *Registry

	listenerMu sync.Mutex
	listener   net.Listener

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new accept server.
func NewServer(config Config) (*Server, error) {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.BufferSize < 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfig, config.BufferSize)
	}
	if config.MaxConcurrent < 0 {
		return nil, fmt.Errorf("%w: max concurrent must be positive, got %d", ErrInvalidConfig, config.MaxConcurrent)
	}
	if config.IdleTimeout < 0 {
		return nil, fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfig)
	}

	return &Server{
		config:   config,
		logger:   log.OrNoop(config.Logger),
		gate:     semaphore.NewWeighted(int64(config.MaxConcurrent)),
		registry: NewRegistry(),
	}, nil
}

// Start binds the listening socket and begins accepting connections.
// A bind failure is returned as *BindError.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	lc := listenConfig()
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return &BindError{Addr: s.config.Address, Err: err}
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Serve starts the server and blocks until ctx is done, then stops it.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop closes the listener and all live connections and waits for the
// handlers to finish.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	err := s.listener.Close()
	s.registry.CloseAll()
	s.wg.Wait()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ActiveCount returns the number of connections currently held.
func (s *Server) ActiveCount() int {
	return s.registry.Len()
}

// acceptLoop admits connections one slot at a time.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		// Blocks while at capacity; fails only when the server stops.
		if err := s.gate.Acquire(s.ctx, 1); err != nil {
			return
		}

		nc, err := s.listener.Accept()
		if err != nil {
			s.gate.Release(1)
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.config.Metrics.Error()
			s.logger.Log(log.Event{
				Timestamp: time.Now(),
				Role:      log.RoleAcceptor,
				Kind:      log.KindError,
				LocalAddr: s.listener.Addr().String(),
				Count:     s.registry.Len(),
				Err:       fmt.Errorf("accept: %w", err),
			})
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		s.admit(nc)
	}
}

// admit registers an accepted connection and starts its handler. The caller
// holds one admission slot, which the handler releases.
func (s *Server) admit(nc net.Conn) {
	c := newConn(nc)
	count := s.registry.Add(c)
	s.config.Metrics.Opened(count)
	s.logConn(log.KindConnected, c, log.StateConnecting, count, nil)

	// Stop may have run CloseAll before the Add above.
	if !s.running.Load() {
		_ = c.Close()
	}

	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}

	s.wg.Add(1)
	go s.handleConnection(c)
}

// handleConnection drains a connection until EOF or error, then releases
// its admission slot.
func (s *Server) handleConnection(c *Conn) {
	defer s.wg.Done()

	buf := make([]byte, s.config.BufferSize)
	for {
		if s.config.IdleTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout)); err != nil {
				if s.running.Load() && c.State() == log.StateEstablished {
					s.config.Metrics.Error()
					s.logConn(log.KindError, c, c.State(), s.registry.Len(), fmt.Errorf("set read deadline: %w", err))
				}
				break
			}
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.bytesRead.Add(int64(n))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && s.running.Load() && c.State() == log.StateEstablished {
				if errors.Is(err, os.ErrDeadlineExceeded) {
					err = fmt.Errorf("idle for %s: %w", s.config.IdleTimeout, err)
				}
				s.config.Metrics.Error()
				s.logConn(log.KindError, c, c.State(), s.registry.Len(), err)
			}
			break
		}
	}

	oldState := c.State()
	closeErr := c.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close: %w", closeErr)
	}
	count := s.registry.Remove(c)
	s.config.Metrics.Closed(count)
	s.logConn(log.KindDisconnected, c, oldState, count, closeErr)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}

	s.gate.Release(1)
}

func (s *Server) logConn(kind log.Kind, c *Conn, oldState log.State, count int, err error) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ID(),
		Role:         log.RoleAcceptor,
		Kind:         kind,
		LocalAddr:    c.LocalAddr().String(),
		RemoteAddr:   c.RemoteAddr().String(),
		OldState:     oldState,
		NewState:     c.State(),
		Count:        count,
		Err:          err,
	})
}
