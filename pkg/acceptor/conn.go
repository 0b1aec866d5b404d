package acceptor

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/netlab-course/lbharness/pkg/log"
)

// Conn is an inbound connection admitted by the server.
type Conn struct {
	id        string
	conn      net.Conn
	createdAt time.Time

	state     atomic.Uint32
	bytesRead atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

func newConn(nc net.Conn) *Conn {
	c := &Conn{
		id:        uuid.New().String(),
		conn:      nc,
		createdAt: time.Now(),
	}
	c.state.Store(uint32(log.StateEstablished))
	return c
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string { return c.id }

// LocalAddr returns the server side endpoint.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the client endpoint.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// CreatedAt returns the accept time.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Conn) State() log.State { return log.State(c.state.Load()) }

// BytesRead returns the number of payload bytes drained so far.
func (c *Conn) BytesRead() int64 { return c.bytesRead.Load() }

// Close closes the socket. Only the first call has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(uint32(log.StateClosing))
		c.closeErr = c.conn.Close()
		c.state.Store(uint32(log.StateClosed))
	})
	return c.closeErr
}
