package churn

import "math/rand/v2"

// Pool is the set of live connections held by one worker.
// It is not safe for concurrent use; only its owning worker touches it.
type Pool struct {
	max   int
	conns []*Conn
}

// NewPool creates an empty pool with the given ceiling.
func NewPool(limit int) *Pool {
	return &Pool{
		max:   limit,
		conns: make([]*Conn, 0, limit),
	}
}

// Len returns the number of pooled connections.
func (p *Pool) Len() int { return len(p.conns) }

// Max returns the pool ceiling.
func (p *Pool) Max() int { return p.max }

// Room returns how many more connections fit.
func (p *Pool) Room() int { return p.max - len(p.conns) }

// Add appends c and reports whether it fit under the ceiling.
func (p *Pool) Add(c *Conn) bool {
	if len(p.conns) >= p.max {
		return false
	}
	p.conns = append(p.conns, c)
	return true
}

// TakeRandom removes up to n distinct connections chosen uniformly at random
// and returns them.
func (p *Pool) TakeRandom(rng *rand.Rand, n int) []*Conn {
	if n > len(p.conns) {
		n = len(p.conns)
	}
	taken := make([]*Conn, 0, n)
	for range n {
		i := rng.IntN(len(p.conns))
		taken = append(taken, p.conns[i])
		last := len(p.conns) - 1
		p.conns[i] = p.conns[last]
		p.conns[last] = nil
		p.conns = p.conns[:last]
	}
	return taken
}

// Drain removes and returns every pooled connection.
func (p *Pool) Drain() []*Conn {
	all := p.conns
	p.conns = make([]*Conn, 0, p.max)
	return all
}
