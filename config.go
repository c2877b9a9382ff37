package noise

import (
	"io"
	"time"

	"github.com/go-i2p/go-noise/handshake"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/obfs"
	"github.com/samber/oops"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultHandshakeRetries = 3
	DefaultRetryBackoff     = time.Second
)

// ConnConfig describes one side of a Noise session: the protocol, the key
// material the pattern needs, timing limits and wire obfuscation. Build it
// with NewConnConfig and the With methods; key material is copied in.
type ConnConfig struct {
	// Full protocol name, e.g. "Noise_XX_25519_ChaChaPoly_SHA256".
	ProtocolName string

	// Initiator sends the first handshake message.
	Initiator bool

	StaticKey []byte // local static private key
	RemoteKey []byte // peer's static public key, for K/I/N-style pre-messages
	PSK       []byte
	Prologue  []byte

	// Random feeds ephemeral key generation. Nil means crypto/rand.
	Random io.Reader

	// HandshakeTimeout bounds one handshake attempt. Read and write
	// timeouts apply per call after the handshake; zero disables them.
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// HandshakeRetries is the number of extra attempts HandshakeWithRetry
	// makes; -1 retries until the context ends. The delay before retry n
	// is RetryBackoff * 2^n, capped at 30s.
	HandshakeRetries int
	RetryBackoff     time.Duration

	// Modifiers rewrite handshake messages on the wire, in order when
	// sending and in reverse when receiving. Both peers need matching chains.
	Modifiers []obfs.Modifier

	// ObfuscateLengths masks transport frame length prefixes with SipHash.
	ObfuscateLengths bool
}

// NewConnConfig returns a config with the default timeout and retry policy.
func NewConnConfig(protocolName string, initiator bool) *ConnConfig {
	return &ConnConfig{
		ProtocolName:     protocolName,
		Initiator:        initiator,
		HandshakeTimeout: DefaultHandshakeTimeout,
		HandshakeRetries: DefaultHandshakeRetries,
		RetryBackoff:     DefaultRetryBackoff,
	}
}

func (c *ConnConfig) WithStaticKey(key []byte) *ConnConfig {
	c.StaticKey = cloneKey(key)
	return c
}

func (c *ConnConfig) WithRemoteKey(key []byte) *ConnConfig {
	c.RemoteKey = cloneKey(key)
	return c
}

func (c *ConnConfig) WithPSK(psk []byte) *ConnConfig {
	c.PSK = cloneKey(psk)
	return c
}

func (c *ConnConfig) WithPrologue(prologue []byte) *ConnConfig {
	c.Prologue = cloneKey(prologue)
	return c
}

func (c *ConnConfig) WithRandom(r io.Reader) *ConnConfig {
	c.Random = r
	return c
}

func (c *ConnConfig) WithHandshakeTimeout(d time.Duration) *ConnConfig {
	c.HandshakeTimeout = d
	return c
}

func (c *ConnConfig) WithReadTimeout(d time.Duration) *ConnConfig {
	c.ReadTimeout = d
	return c
}

func (c *ConnConfig) WithWriteTimeout(d time.Duration) *ConnConfig {
	c.WriteTimeout = d
	return c
}

// WithHandshakeRetries sets the retry count: 0 disables retries, -1 never
// gives up.
func (c *ConnConfig) WithHandshakeRetries(retries int) *ConnConfig {
	c.HandshakeRetries = retries
	return c
}

func (c *ConnConfig) WithRetryBackoff(d time.Duration) *ConnConfig {
	c.RetryBackoff = d
	return c
}

// WithModifiers replaces the modifier list.
func (c *ConnConfig) WithModifiers(modifiers ...obfs.Modifier) *ConnConfig {
	c.Modifiers = append([]obfs.Modifier(nil), modifiers...)
	return c
}

// AddModifier appends one modifier to the end of the list.
func (c *ConnConfig) AddModifier(modifier obfs.Modifier) *ConnConfig {
	c.Modifiers = append(c.Modifiers, modifier)
	return c
}

func (c *ConnConfig) ClearModifiers() *ConnConfig {
	c.Modifiers = nil
	return c
}

func (c *ConnConfig) WithLengthObfuscation(enabled bool) *ConnConfig {
	c.ObfuscateLengths = enabled
	return c
}

// GetModifierChain wraps the modifiers in an obfs.Chain, or returns nil when
// there are none.
func (c *ConnConfig) GetModifierChain() *obfs.Chain {
	if len(c.Modifiers) == 0 {
		return nil
	}
	return obfs.NewChain(c.ProtocolName, c.Modifiers...)
}

// Role maps Initiator onto the handshake role.
func (c *ConnConfig) Role() handshake.Role {
	if c.Initiator {
		return handshake.RoleInitiator
	}
	return handshake.RoleResponder
}

// handshakeConfig builds the configuration for a fresh HandshakeState.
func (c *ConnConfig) handshakeConfig() *handshake.Config {
	hc := handshake.NewConfig(c.ProtocolName, c.Role()).
		WithLocalStatic(c.StaticKey).
		WithRemoteStatic(c.RemoteKey).
		WithPSK(c.PSK).
		WithPrologue(c.Prologue)
	if c.Random != nil {
		hc.WithRandom(c.Random)
	}
	return hc
}

// Validate reports the first problem with the protocol name, key lengths,
// timeouts or retry policy. Keys a pattern requires but that are missing
// are only detected when the handshake state is built.
func (c *ConnConfig) Validate() error {
	if c.ProtocolName == "" {
		return configError("INVALID_PROTOCOL", "protocol", c.ProtocolName, "noise protocol name is required")
	}
	if err := c.handshakeConfig().Validate(); err != nil {
		return oops.
			Code("INVALID_PROTOCOL").
			In("noise").
			With("protocol", c.ProtocolName).
			Wrapf(err, "invalid handshake configuration")
	}
	if err := validateTimeouts(c.HandshakeTimeout, c.ReadTimeout, c.WriteTimeout); err != nil {
		return err
	}

	switch {
	case c.HandshakeRetries < -1:
		return configError("INVALID_RETRY_COUNT", "retries", c.HandshakeRetries,
			"handshake retries must be -1, 0 or positive")
	case c.RetryBackoff < 0:
		return configError("INVALID_RETRY_BACKOFF", "backoff", c.RetryBackoff,
			"retry backoff must not be negative")
	}
	return nil
}

func validateTimeouts(handshakeTimeout, readTimeout, writeTimeout time.Duration) error {
	switch {
	case handshakeTimeout <= 0:
		return configError("INVALID_TIMEOUT", "handshake_timeout", handshakeTimeout,
			"handshake timeout must be positive")
	case readTimeout < 0:
		return configError("INVALID_TIMEOUT", "read_timeout", readTimeout,
			"read timeout must not be negative")
	case writeTimeout < 0:
		return configError("INVALID_TIMEOUT", "write_timeout", writeTimeout,
			"write timeout must not be negative")
	}
	return nil
}

func configError(code, key string, value any, msg string) error {
	return oops.
		Code(code).
		In("noise").
		With(key, value).
		Wrapf(noiseerr.ErrInvalidParam, "%s", msg)
}

func cloneKey(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
