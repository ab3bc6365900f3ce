package synctransport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// pooledConn is a handshaked, ready-to-use connection to one peer.
type pooledConn struct {
	conn net.Conn
}

// pool keeps at most one live, authenticated connection per peer
// address, reconnecting with exponential backoff (100ms up to 30s) when
// a peer is unreachable, per spec.md §4.L.
type pool struct {
	key []byte

	mu      sync.Mutex
	conns   map[string]*pooledConn
	backoff map[string]time.Duration
	until   map[string]time.Time
}

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 30 * time.Second
)

func newPool(key []byte) *pool {
	return &pool{
		key:     key,
		conns:   make(map[string]*pooledConn),
		backoff: make(map[string]time.Duration),
		until:   make(map[string]time.Time),
	}
}

// get returns a live connection to addr, dialing and handshaking a new
// one if none is cached or the cached one is known-bad.
func (p *pool) get(addr string) (*pooledConn, error) {
	p.mu.Lock()
	if until, ok := p.until[addr]; ok && time.Now().Before(until) {
		p.mu.Unlock()
		return nil, fmt.Errorf("backing off connection to %s", addr)
	}
	if c, ok := p.conns[addr]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		p.recordFailure(addr)
		return nil, err
	}
	if err := clientHandshake(conn, p.key); err != nil {
		conn.Close()
		p.recordFailure(addr)
		return nil, err
	}

	pc := &pooledConn{conn: conn}
	p.mu.Lock()
	p.conns[addr] = pc
	delete(p.backoff, addr)
	delete(p.until, addr)
	p.mu.Unlock()
	return pc, nil
}

// drop discards addr's cached connection, forcing the next get to
// redial, and starts or advances its backoff window.
func (p *pool) drop(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[addr]; ok {
		c.conn.Close()
		delete(p.conns, addr)
	}
	p.recordFailureLocked(addr)
}

func (p *pool) recordFailure(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordFailureLocked(addr)
}

func (p *pool) recordFailureLocked(addr string) {
	next := p.backoff[addr] * 2
	if next < minBackoff {
		next = minBackoff
	}
	if next > maxBackoff {
		next = maxBackoff
	}
	p.backoff[addr] = next
	p.until[addr] = time.Now().Add(next)
}

func (p *pool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, c := range p.conns {
		c.conn.Close()
		delete(p.conns, addr)
	}
}
