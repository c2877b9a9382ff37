package internal

import (
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of a NoiseConn.
type ConnState int

const (
	StateInit ConnState = iota
	StateHandshaking
	StateEstablished
	StateClosed
	// StateFailed is entered when the handshake cannot be retried or a
	// transport frame fails authentication. Only Close is valid afterwards.
	StateFailed
)

var connStateNames = [...]string{
	StateInit:        "init",
	StateHandshaking: "handshaking",
	StateEstablished: "established",
	StateClosed:      "closed",
	StateFailed:      "failed",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(connStateNames) {
		return "unknown"
	}
	return connStateNames[s]
}

// Terminal reports whether no further handshake or transport use is possible.
func (s ConnState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// FrameCounter counts transport frames in one direction and the plaintext
// bytes they carried.
type FrameCounter struct {
	frames atomic.Int64
	bytes  atomic.Int64
}

// Add records one frame of n plaintext bytes.
func (c *FrameCounter) Add(n int) {
	c.frames.Add(1)
	c.bytes.Add(int64(n))
}

// Load returns the frame and byte totals.
func (c *FrameCounter) Load() (frames, bytes int64) {
	return c.frames.Load(), c.bytes.Load()
}

// Metrics collects per-connection counters. The zero value is not usable;
// create one with NewMetrics.
type Metrics struct {
	Created time.Time
	Read    FrameCounter
	Written FrameCounter

	mu       sync.Mutex
	attempts int
	started  time.Time
	finished time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{Created: time.Now()}
}

// HandshakeStarted marks the start of a handshake attempt.
func (m *Metrics) HandshakeStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	m.started = time.Now()
	m.finished = time.Time{}
}

// HandshakeFinished marks the current attempt as successful.
func (m *Metrics) HandshakeFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = time.Now()
}

// HandshakeDuration is the length of the successful attempt, or zero if the
// handshake has not completed.
func (m *Metrics) HandshakeDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started.IsZero() || m.finished.IsZero() {
		return 0
	}
	return m.finished.Sub(m.started)
}

// HandshakeAttempts is the number of handshakes started on the connection.
func (m *Metrics) HandshakeAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
