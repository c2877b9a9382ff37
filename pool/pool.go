// Package pool keeps established connections for reuse, keyed by the
// destination and protocol they were negotiated for. A pooled Noise session
// carries its own transport keys, so only a connection that completed its
// handshake should be put into a pool.
package pool

import (
	"net"
	"sync"
	"time"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

var log = logger.GetGoI2PLogger()

type entry struct {
	conn     net.Conn
	created  time.Time
	lastUsed time.Time
	inUse    bool
}

// Pool holds reusable connections grouped by key.
type Pool struct {
	mu      sync.Mutex
	entries map[string][]*entry
	config  Config
	closed  bool
	stop    chan struct{}
	now     func() time.Time
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Total     int
	InUse     int
	Available int
	Keys      int
}

// New creates a pool and starts its cleanup goroutine. A nil config uses
// DefaultConfig.
func New(config *Config) *Pool {
	return newPool(config, time.Now)
}

func newPool(config *Config, now func() time.Time) *Pool {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	p := &Pool{
		entries: make(map[string][]*entry),
		config:  cfg,
		stop:    make(chan struct{}),
		now:     now,
	}
	go p.cleanup()
	return p
}

// Put adds conn to the pool under key as an idle connection. If the pool is
// closed or the key is full, conn is closed instead.
func (p *Pool) Put(key string, conn net.Conn) error {
	if conn == nil {
		return oops.
			Code("INVALID_CONN").
			In("pool").
			Wrapf(noiseerr.ErrInvalidParam, "cannot put nil connection in pool")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.entries[key]) >= p.config.MaxSize {
		return conn.Close()
	}

	now := p.now()
	p.entries[key] = append(p.entries[key], &entry{conn: conn, created: now, lastUsed: now})
	log.WithFields(logrus.Fields{
		"key":   key,
		"count": len(p.entries[key]),
	}).Debug("connection added to pool")
	return nil
}

// Get leases an idle connection for key, or returns nil if none is usable.
// Closing the lease returns the connection to the pool.
func (p *Pool) Get(key string) *Lease {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	for _, e := range p.entries[key] {
		if !e.inUse && p.valid(e) {
			e.inUse = true
			e.lastUsed = p.now()
			return &Lease{Conn: e.conn, pool: p, key: key}
		}
	}
	return nil
}

// Adopt adds conn under key already leased to the caller. It returns nil and
// leaves conn open if the pool is closed or the key is full, so the caller
// can keep using conn unpooled.
func (p *Pool) Adopt(key string, conn net.Conn) *Lease {
	if conn == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.entries[key]) >= p.config.MaxSize {
		return nil
	}

	now := p.now()
	p.entries[key] = append(p.entries[key], &entry{conn: conn, created: now, lastUsed: now, inUse: true})
	log.WithFields(logrus.Fields{
		"key":   key,
		"count": len(p.entries[key]),
	}).Debug("connection adopted by pool")
	return &Lease{Conn: conn, pool: p, key: key}
}

func (p *Pool) release(key string, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries[key] {
		if e.conn == conn {
			e.inUse = false
			e.lastUsed = p.now()
			return
		}
	}
}

// Remove drops conn from the pool and closes it.
func (p *Pool) Remove(key string, conn net.Conn) error {
	p.mu.Lock()
	list := p.entries[key]
	for i, e := range list {
		if e.conn == conn {
			p.entries[key] = append(list[:i:i], list[i+1:]...)
			if len(p.entries[key]) == 0 {
				delete(p.entries, key)
			}
			break
		}
	}
	p.mu.Unlock()
	return conn.Close()
}

// Close closes every pooled connection and stops the cleanup goroutine.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	entries := p.entries
	p.entries = make(map[string][]*entry)
	p.mu.Unlock()

	close(p.stop)

	var firstErr error
	for _, list := range entries {
		for _, e := range list {
			if err := e.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Stats
	for _, list := range p.entries {
		s.Total += len(list)
		for _, e := range list {
			if e.inUse {
				s.InUse++
			}
		}
	}
	s.Available = s.Total - s.InUse
	s.Keys = len(p.entries)
	return s
}

// valid reports whether e is within the age and idle limits.
func (p *Pool) valid(e *entry) bool {
	now := p.now()
	if p.config.MaxAge > 0 && now.Sub(e.created) > p.config.MaxAge {
		return false
	}
	if p.config.MaxIdle > 0 && now.Sub(e.lastUsed) > p.config.MaxIdle {
		return false
	}
	return true
}

func (p *Pool) cleanup() {
	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep closes idle connections that have expired.
func (p *Pool) sweep() {
	p.mu.Lock()
	var expired []net.Conn
	for key, list := range p.entries {
		kept := list[:0]
		for _, e := range list {
			if e.inUse || p.valid(e) {
				kept = append(kept, e)
			} else {
				expired = append(expired, e.conn)
			}
		}
		if len(kept) == 0 {
			delete(p.entries, key)
		} else {
			p.entries[key] = kept
		}
	}
	p.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		log.WithField("expired", len(expired)).Debug("pool swept expired connections")
	}
}

// Lease is a connection borrowed from a Pool.
type Lease struct {
	net.Conn
	pool *Pool
	key  string
	once sync.Once
}

// Close returns the connection to the pool instead of closing it.
func (l *Lease) Close() error {
	l.once.Do(func() { l.pool.release(l.key, l.Conn) })
	return nil
}

// Discard removes the connection from the pool and closes it, for use
// after an error that leaves the session unusable.
func (l *Lease) Discard() error {
	var err error
	l.once.Do(func() { err = l.pool.Remove(l.key, l.Conn) })
	return err
}

// Unwrap returns the pooled connection.
func (l *Lease) Unwrap() net.Conn {
	return l.Conn
}
