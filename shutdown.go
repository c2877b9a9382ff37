package noise

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// ShutdownManager coordinates graceful shutdown of listeners and
// connections. Listeners are closed first; connections get until the
// timeout to close on their own and are then closed forcibly.
type ShutdownManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	connections map[*NoiseConn]struct{}
	listeners   map[*NoiseListener]struct{}
	// drained is closed when the last connection unregisters during shutdown
	drained chan struct{}

	timeout time.Duration
	done    chan struct{}
	once    sync.Once
	err     error
}

// NewShutdownManager creates a shutdown manager. A zero timeout means 30 seconds.
func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[*NoiseConn]struct{}),
		listeners:   make(map[*NoiseListener]struct{}),
		timeout:     timeout,
		done:        make(chan struct{}),
	}
}

// RegisterConnection tracks conn until it closes.
func (sm *ShutdownManager) RegisterConnection(conn *NoiseConn) {
	if conn == nil {
		return
	}
	sm.mu.Lock()
	sm.connections[conn] = struct{}{}
	total := len(sm.connections)
	sm.mu.Unlock()

	log.WithFields(logrus.Fields{
		"remote_addr": conn.RemoteAddr().String(),
		"total_conns": total,
	}).Debug("registered connection for shutdown management")
}

// UnregisterConnection stops tracking conn. NoiseConn.Close calls it.
func (sm *ShutdownManager) UnregisterConnection(conn *NoiseConn) {
	if conn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.connections, conn)
	if len(sm.connections) == 0 && sm.drained != nil {
		close(sm.drained)
		sm.drained = nil
	}
}

// RegisterListener tracks listener until it closes.
func (sm *ShutdownManager) RegisterListener(listener *NoiseListener) {
	if listener == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners[listener] = struct{}{}
}

// UnregisterListener stops tracking listener. NoiseListener.Close calls it.
func (sm *ShutdownManager) UnregisterListener(listener *NoiseListener) {
	if listener == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.listeners, listener)
}

// Context is cancelled when shutdown starts.
func (sm *ShutdownManager) Context() context.Context {
	return sm.ctx
}

// Shutdown closes all managed components. Only the first call does work;
// later calls return its result.
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() {
		defer close(sm.done)

		sm.mu.Lock()
		log.WithFields(logrus.Fields{
			"timeout":     sm.timeout.String(),
			"connections": len(sm.connections),
			"listeners":   len(sm.listeners),
		}).Info("initiating graceful shutdown")
		sm.mu.Unlock()

		sm.cancel()
		sm.err = sm.closeListeners()
		if err := sm.drainConnections(); err != nil && sm.err == nil {
			sm.err = err
		}
		log.Info("graceful shutdown complete")
	})
	<-sm.done
	return sm.err
}

// Wait blocks until shutdown is complete.
func (sm *ShutdownManager) Wait() {
	<-sm.done
}

func (sm *ShutdownManager) closeListeners() error {
	sm.mu.Lock()
	listeners := make([]*NoiseListener, 0, len(sm.listeners))
	for l := range sm.listeners {
		listeners = append(listeners, l)
	}
	sm.mu.Unlock()

	var firstErr error
	for _, l := range listeners {
		if err := l.Close(); err != nil {
			log.WithError(err).WithField("listener_addr", l.Addr().String()).
				Error("error closing listener during shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// drainConnections waits for connections to close and force-closes the
// rest after the timeout.
func (sm *ShutdownManager) drainConnections() error {
	sm.mu.Lock()
	if len(sm.connections) == 0 {
		sm.mu.Unlock()
		return nil
	}
	drained := make(chan struct{})
	sm.drained = drained
	sm.mu.Unlock()

	timer := time.NewTimer(sm.timeout)
	defer timer.Stop()

	select {
	case <-drained:
		return nil
	case <-timer.C:
	}

	sm.mu.Lock()
	sm.drained = nil
	conns := make([]*NoiseConn, 0, len(sm.connections))
	for c := range sm.connections {
		conns = append(conns, c)
	}
	sm.mu.Unlock()

	log.WithField("remaining_connections", len(conns)).
		Warn("timeout waiting for connections to drain, forcing close")

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return oops.
			Code("SHUTDOWN_FORCE_CLOSE_FAILED").
			In("shutdown").
			With("connections", len(conns)).
			Wrapf(firstErr, "error force closing connections")
	}
	return nil
}
