package noise

import (
	"net"
	"sync"
	"time"

	"github.com/go-i2p/go-noise/handshake"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/obfs"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// ListenerConfig is the responder template applied to every accepted
// connection. Initiator, RemoteKey and the retry policy of the embedded
// ConnConfig are ignored: responders learn the peer from the handshake and
// never restart it.
type ListenerConfig struct {
	ConnConfig

	// ModifierFactory, when set, builds a fresh modifier chain for every
	// accepted connection and takes precedence over Modifiers.
	ModifierFactory func() []obfs.Modifier
}

// NewListenerConfig returns a responder template with the default
// handshake timeout.
func NewListenerConfig(protocolName string) *ListenerConfig {
	return &ListenerConfig{ConnConfig: ConnConfig{
		ProtocolName:     protocolName,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}}
}

func (lc *ListenerConfig) WithStaticKey(key []byte) *ListenerConfig {
	lc.ConnConfig.WithStaticKey(key)
	return lc
}

func (lc *ListenerConfig) WithPSK(psk []byte) *ListenerConfig {
	lc.ConnConfig.WithPSK(psk)
	return lc
}

func (lc *ListenerConfig) WithPrologue(prologue []byte) *ListenerConfig {
	lc.ConnConfig.WithPrologue(prologue)
	return lc
}

func (lc *ListenerConfig) WithHandshakeTimeout(d time.Duration) *ListenerConfig {
	lc.ConnConfig.WithHandshakeTimeout(d)
	return lc
}

func (lc *ListenerConfig) WithReadTimeout(d time.Duration) *ListenerConfig {
	lc.ConnConfig.WithReadTimeout(d)
	return lc
}

func (lc *ListenerConfig) WithWriteTimeout(d time.Duration) *ListenerConfig {
	lc.ConnConfig.WithWriteTimeout(d)
	return lc
}

// WithModifiers sets a chain whose instances every accepted connection
// shares. Use it only for stateless modifiers; stateful ones such as
// obfs.AESModifier belong in WithModifierFactory.
func (lc *ListenerConfig) WithModifiers(modifiers ...obfs.Modifier) *ListenerConfig {
	lc.ConnConfig.WithModifiers(modifiers...)
	return lc
}

// WithModifierFactory makes each accepted connection build its own chain.
func (lc *ListenerConfig) WithModifierFactory(factory func() []obfs.Modifier) *ListenerConfig {
	lc.ModifierFactory = factory
	return lc
}

func (lc *ListenerConfig) WithLengthObfuscation(enabled bool) *ListenerConfig {
	lc.ConnConfig.WithLengthObfuscation(enabled)
	return lc
}

// connConfig copies the template into the config for one accepted connection.
func (lc *ListenerConfig) connConfig() *ConnConfig {
	cfg := lc.ConnConfig
	cfg.Initiator = false
	cfg.RemoteKey = nil
	cfg.HandshakeRetries = 0
	cfg.RetryBackoff = 0
	if lc.ModifierFactory != nil {
		cfg.Modifiers = lc.ModifierFactory()
	} else {
		cfg.Modifiers = append([]obfs.Modifier(nil), lc.Modifiers...)
	}
	return &cfg
}

// Validate checks the template the same way ConnConfig.Validate does.
func (lc *ListenerConfig) Validate() error {
	return lc.connConfig().Validate()
}

// NoiseListener is a net.Listener whose Accept returns responder
// *NoiseConn values. The caller runs Handshake on each.
type NoiseListener struct {
	underlying net.Listener
	config     *ListenerConfig
	addr       *NoiseAddr
	logger     *logger.Logger

	mu              sync.Mutex
	closed          bool
	shutdownManager *ShutdownManager
}

// NewNoiseListener wraps underlying. Besides validating config it builds
// and discards one handshake state, so a missing static key or psk is
// reported here instead of on the first Accept.
func NewNoiseListener(underlying net.Listener, config *ListenerConfig) (*NoiseListener, error) {
	switch {
	case underlying == nil:
		return nil, oops.
			Code("INVALID_LISTENER").
			In("noise").
			Wrapf(noiseerr.ErrInvalidParam, "underlying listener cannot be nil")
	case config == nil:
		return nil, oops.
			Code("INVALID_CONFIG").
			In("noise").
			Wrapf(noiseerr.ErrInvalidParam, "listener config cannot be nil")
	}

	listenAddr := underlying.Addr().String()
	err := config.Validate()
	if err == nil {
		var trial *handshake.HandshakeState
		if trial, err = createHandshakeState(config.connConfig()); err == nil {
			trial.Destroy()
		}
	}
	if err != nil {
		return nil, oops.
			Code("INVALID_CONFIG").
			In("noise").
			With("listener_addr", listenAddr).
			With("protocol", config.ProtocolName).
			Wrapf(err, "invalid listener configuration")
	}

	nl := &NoiseListener{
		underlying: underlying,
		config:     config,
		addr:       NewNoiseAddr(underlying.Addr(), config.ProtocolName, "responder"),
		logger:     log,
	}
	nl.logger.WithFields(logrus.Fields{
		"protocol":          config.ProtocolName,
		"listener_address":  listenAddr,
		"handshake_timeout": config.HandshakeTimeout,
	}).Info("noise listener created")
	return nl, nil
}

// Accept blocks for the next inbound connection and wraps it as a responder.
// After Close it returns an error matching net.ErrClosed.
func (nl *NoiseListener) Accept() (net.Conn, error) {
	if nl.isClosed() {
		return nil, nl.acceptError("LISTENER_CLOSED", net.ErrClosed, "listener is closed")
	}

	raw, err := nl.underlying.Accept()
	if err != nil {
		return nil, nl.acceptError("ACCEPT_FAILED", err, "failed to accept underlying connection")
	}

	nc, err := NewNoiseConn(raw, nl.config.connConfig())
	if err != nil {
		raw.Close()
		return nil, nl.acceptError("WRAP_FAILED", err, "failed to create noise connection")
	}
	if sm := nl.manager(); sm != nil {
		nc.SetShutdownManager(sm)
	}

	nl.logger.WithFields(logrus.Fields{
		"listener_addr": nl.addr.String(),
		"remote_addr":   raw.RemoteAddr().String(),
	}).Debug("accepted noise connection")
	return nc, nil
}

func (nl *NoiseListener) acceptError(code string, err error, msg string) error {
	return oops.
		Code(code).
		In("noise").
		With("listener_addr", nl.addr.String()).
		Wrapf(err, "%s", msg)
}

// Close stops accepting. Connections already accepted stay open. Closing
// twice is a no-op.
func (nl *NoiseListener) Close() error {
	nl.mu.Lock()
	if nl.closed {
		nl.mu.Unlock()
		return nil
	}
	nl.closed = true
	sm := nl.shutdownManager
	nl.mu.Unlock()

	if sm != nil {
		sm.UnregisterListener(nl)
	}

	if err := nl.underlying.Close(); err != nil {
		nl.logger.WithError(err).WithField("listener_addr", nl.addr.String()).
			Error("error closing underlying listener")
		return nl.acceptError("CLOSE_FAILED", err, "failed to close underlying listener")
	}
	nl.logger.WithField("listener_addr", nl.addr.String()).Info("noise listener closed")
	return nil
}

// SetShutdownManager registers the listener with sm. Connections accepted
// afterwards are registered too.
func (nl *NoiseListener) SetShutdownManager(sm *ShutdownManager) {
	nl.mu.Lock()
	nl.shutdownManager = sm
	nl.mu.Unlock()
	if sm != nil {
		sm.RegisterListener(nl)
	}
}

// Addr returns the listener's NoiseAddr.
func (nl *NoiseListener) Addr() net.Addr {
	return nl.addr
}

func (nl *NoiseListener) manager() *ShutdownManager {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	return nl.shutdownManager
}

func (nl *NoiseListener) isClosed() bool {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	return nl.closed
}
