package noise

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/pool"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

var (
	globalMu              sync.Mutex
	globalConnPool        *pool.Pool
	globalShutdownManager *ShutdownManager
)

func init() {
	globalConnPool = pool.New(pool.DefaultConfig())
	globalShutdownManager = NewShutdownManager(30 * time.Second)
}

// SetGlobalConnPool replaces the pool used by DialNoiseWithPool and closes
// the previous one.
func SetGlobalConnPool(p *pool.Pool) {
	globalMu.Lock()
	old := globalConnPool
	globalConnPool = p
	globalMu.Unlock()
	if old != nil && old != p {
		old.Close()
	}
}

// GetGlobalConnPool returns the current global connection pool.
func GetGlobalConnPool() *pool.Pool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalConnPool
}

// SetGlobalShutdownManager replaces the shutdown manager used by the
// transport functions. The previous one is shut down.
func SetGlobalShutdownManager(sm *ShutdownManager) {
	globalMu.Lock()
	old := globalShutdownManager
	globalShutdownManager = sm
	globalMu.Unlock()
	if old != nil && old != sm {
		old.Shutdown()
	}
}

// GetGlobalShutdownManager returns the current global shutdown manager.
func GetGlobalShutdownManager() *ShutdownManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalShutdownManager
}

// GracefulShutdown shuts down the global shutdown manager and closes the
// global connection pool.
func GracefulShutdown() error {
	var err error
	if sm := GetGlobalShutdownManager(); sm != nil {
		err = sm.Shutdown()
	}
	if p := GetGlobalConnPool(); p != nil {
		if perr := p.Close(); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// DialNoise dials addr and wraps the connection in a NoiseConn. The caller
// runs the handshake.
func DialNoise(network, addr string, config *ConnConfig) (*NoiseConn, error) {
	return DialNoiseContext(context.Background(), network, addr, config)
}

// DialNoiseContext is DialNoise with a context for the dial.
func DialNoiseContext(ctx context.Context, network, addr string, config *ConnConfig) (*NoiseConn, error) {
	if err := validateDialParams(network, addr, config); err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, oops.
			Code("DIAL_FAILED").
			In("transport").
			With("network", network).
			With("address", addr).
			Wrapf(err, "failed to dial %s://%s", network, addr)
	}

	nc, err := NewNoiseConn(conn, config)
	if err != nil {
		conn.Close()
		return nil, oops.
			Code("NOISE_CONN_FAILED").
			In("transport").
			With("network", network).
			With("address", addr).
			Wrapf(err, "failed to create noise connection")
	}

	if sm := GetGlobalShutdownManager(); sm != nil {
		nc.SetShutdownManager(sm)
	}
	return nc, nil
}

// DialNoiseWithHandshake dials addr and completes the handshake, retrying
// as configured.
func DialNoiseWithHandshake(network, addr string, config *ConnConfig) (*NoiseConn, error) {
	return DialNoiseWithHandshakeContext(context.Background(), network, addr, config)
}

// DialNoiseWithHandshakeContext is DialNoiseWithHandshake with a context
// covering the dial and every handshake attempt.
func DialNoiseWithHandshakeContext(ctx context.Context, network, addr string, config *ConnConfig) (*NoiseConn, error) {
	nc, err := DialNoiseContext(ctx, network, addr, config)
	if err != nil {
		return nil, err
	}

	if err := nc.HandshakeWithRetry(ctx); err != nil {
		nc.Close()
		return nil, oops.
			Code("HANDSHAKE_FAILED").
			In("transport").
			With("network", network).
			With("address", addr).
			Wrapf(err, "handshake failed")
	}
	return nc, nil
}

// DialNoiseWithPool returns an established session to addr from the global
// pool, or dials and handshakes a new one and adds it to the pool. Closing
// the returned connection hands it back to the pool. When the pool is full
// for addr the new session is returned unpooled and Close ends it.
func DialNoiseWithPool(ctx context.Context, network, addr string, config *ConnConfig) (net.Conn, error) {
	if err := validateDialParams(network, addr, config); err != nil {
		return nil, err
	}

	p := GetGlobalConnPool()
	key := poolKey(network, addr, config)
	if p != nil {
		if lease := p.Get(key); lease != nil {
			return lease, nil
		}
	}

	nc, err := DialNoiseWithHandshakeContext(ctx, network, addr, config)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nc, nil
	}

	if lease := p.Adopt(key, nc); lease != nil {
		return lease, nil
	}
	log.WithFields(logrus.Fields{
		"key": key,
	}).Debug("Connection pool full, returning unpooled session")
	return nc, nil
}

// poolKey identifies sessions that are interchangeable.
func poolKey(network, addr string, config *ConnConfig) string {
	return network + "://" + addr + "/" + config.ProtocolName
}

// ListenNoise listens on addr and wraps the listener in a NoiseListener.
func ListenNoise(network, addr string, config *ListenerConfig) (*NoiseListener, error) {
	if err := validateListenParams(network, addr, config); err != nil {
		return nil, err
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, oops.
			Code("LISTEN_FAILED").
			In("transport").
			With("network", network).
			With("address", addr).
			Wrapf(err, "failed to listen on %s://%s", network, addr)
	}

	nl, err := NewNoiseListener(listener, config)
	if err != nil {
		listener.Close()
		return nil, oops.
			Code("NOISE_LISTENER_FAILED").
			In("transport").
			With("network", network).
			With("address", addr).
			Wrapf(err, "failed to create noise listener")
	}

	if sm := GetGlobalShutdownManager(); sm != nil {
		nl.SetShutdownManager(sm)
	}
	return nl, nil
}

// WrapConn wraps an existing net.Conn with NoiseConn.
func WrapConn(conn net.Conn, config *ConnConfig) (*NoiseConn, error) {
	return NewNoiseConn(conn, config)
}

// WrapListener wraps an existing net.Listener with NoiseListener.
func WrapListener(listener net.Listener, config *ListenerConfig) (*NoiseListener, error) {
	return NewNoiseListener(listener, config)
}

func validateDialParams(network, addr string, config *ConnConfig) error {
	if err := validateEndpoint(network, addr); err != nil {
		return err
	}
	if config == nil {
		return oops.
			Code("INVALID_CONFIG").
			In("transport").
			Wrapf(noiseerr.ErrInvalidParam, "config cannot be nil")
	}
	return config.Validate()
}

func validateListenParams(network, addr string, config *ListenerConfig) error {
	if err := validateEndpoint(network, addr); err != nil {
		return err
	}
	if config == nil {
		return oops.
			Code("INVALID_CONFIG").
			In("transport").
			Wrapf(noiseerr.ErrInvalidParam, "config cannot be nil")
	}
	return config.Validate()
}

func validateEndpoint(network, addr string) error {
	if network == "" {
		return oops.
			Code("INVALID_NETWORK").
			In("transport").
			Wrapf(noiseerr.ErrInvalidParam, "network cannot be empty")
	}
	if addr == "" {
		return oops.
			Code("INVALID_ADDRESS").
			In("transport").
			Wrapf(noiseerr.ErrInvalidParam, "address cannot be empty")
	}
	return nil
}
