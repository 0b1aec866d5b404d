package churn

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/netlab-course/lbharness/pkg/log"
)

// Conn is an outbound connection owned by a single worker.
type Conn struct {
	id        string
	conn      net.Conn
	local     net.Addr
	remote    net.Addr
	createdAt time.Time
	state     log.State
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		id:        uuid.New().String(),
		conn:      nc,
		local:     nc.LocalAddr(),
		remote:    nc.RemoteAddr(),
		createdAt: time.Now(),
		state:     log.StateEstablished,
	}
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string { return c.id }

// LocalAddr returns the client side endpoint.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// RemoteAddr returns the target endpoint.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// CreatedAt returns the time the handshake completed.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Conn) State() log.State { return c.state }

// Close releases the socket. A connection the peer already closed is
// discovered here, on its next touch. Calling Close on a closed connection
// is a no-op.
func (c *Conn) Close() error {
	if c.state == log.StateClosed {
		return nil
	}
	c.state = log.StateClosing
	err := c.conn.Close()
	c.state = log.StateClosed
	return err
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
