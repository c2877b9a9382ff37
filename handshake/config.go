package handshake

import (
	"crypto/rand"
	"io"

	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/go-i2p/go-noise/suite"
	"github.com/samber/oops"
)

// PSKLen is the required pre-shared key length.
const PSKLen = 32

// Config contains the parameters of a HandshakeState.
// It follows the builder pattern for optional configuration and validation.
type Config struct {
	// ProtocolName is the full protocol name, e.g. "Noise_XX_25519_AESGCM_SHA256"
	ProtocolName string

	// Role selects Alice (initiator) or Bob (responder)
	Role Role

	// LocalStatic is the local static private key; the public key is derived
	LocalStatic []byte

	// RemoteStatic is the peer's static public key, needed when the pattern
	// has it as a pre-message
	RemoteStatic []byte

	// PSK is the 32-byte pre-shared key for psk modifiers
	PSK []byte

	// Prologue is mixed into the handshake hash before any message
	Prologue []byte

	// Random is the source of ephemeral keys. Default: crypto/rand.Reader
	Random io.Reader

	// LocalEphemeral is a fixed local ephemeral private key, required when
	// the local e is a pre-message and otherwise used instead of a fresh key
	LocalEphemeral []byte

	// RemoteEphemeral is the peer's ephemeral public key for pre-messages
	RemoteEphemeral []byte

	// LocalHybridEphemeral is a fixed local hybrid keypair, used like LocalEphemeral
	LocalHybridEphemeral *suite.Keypair

	// RemoteHybridEphemeral is the peer's hybrid ephemeral public key for pre-messages
	RemoteHybridEphemeral []byte
}

// NewConfig creates a Config for protocolName and role with crypto/rand as
// the random source.
func NewConfig(protocolName string, role Role) *Config {
	return &Config{
		ProtocolName: protocolName,
		Role:         role,
		Random:       rand.Reader,
	}
}

// WithLocalStatic sets the local static private key.
func (c *Config) WithLocalStatic(private []byte) *Config {
	c.LocalStatic = cloneBytes(private)
	return c
}

// WithRemoteStatic sets the peer's static public key.
func (c *Config) WithRemoteStatic(public []byte) *Config {
	c.RemoteStatic = cloneBytes(public)
	return c
}

// WithPSK sets the pre-shared key.
func (c *Config) WithPSK(psk []byte) *Config {
	c.PSK = cloneBytes(psk)
	return c
}

// WithPrologue sets the prologue.
func (c *Config) WithPrologue(prologue []byte) *Config {
	c.Prologue = cloneBytes(prologue)
	return c
}

// WithRandom sets the random source.
func (c *Config) WithRandom(r io.Reader) *Config {
	c.Random = r
	return c
}

// WithLocalEphemeral sets a fixed local ephemeral private key.
func (c *Config) WithLocalEphemeral(private []byte) *Config {
	c.LocalEphemeral = cloneBytes(private)
	return c
}

// WithRemoteEphemeral sets the peer's ephemeral public key.
func (c *Config) WithRemoteEphemeral(public []byte) *Config {
	c.RemoteEphemeral = cloneBytes(public)
	return c
}

// WithLocalHybridEphemeral sets a fixed local hybrid keypair.
func (c *Config) WithLocalHybridEphemeral(kp *suite.Keypair) *Config {
	c.LocalHybridEphemeral = kp.Clone()
	return c
}

// WithRemoteHybridEphemeral sets the peer's hybrid ephemeral public key.
func (c *Config) WithRemoteHybridEphemeral(public []byte) *Config {
	c.RemoteHybridEphemeral = cloneBytes(public)
	return c
}

// Validate checks the protocol name, role and pre-shared key. Key lengths
// depend on the algorithms and are checked by NewHandshakeState.
func (c *Config) Validate() error {
	if _, err := c.protocolID(); err != nil {
		return err
	}

	if err := c.validateRole(); err != nil {
		return err
	}

	if err := c.validatePSK(); err != nil {
		return err
	}

	return nil
}

// protocolID parses the protocol name.
func (c *Config) protocolID() (protocol.ProtocolID, error) {
	if c.ProtocolName == "" {
		return protocol.ProtocolID{}, oops.
			Code("INVALID_PARAM").
			In("handshake").
			Wrapf(noiseerr.ErrInvalidParam, "protocol name is required")
	}
	id, err := protocol.ParseProtocolName(c.ProtocolName)
	if err != nil {
		return protocol.ProtocolID{}, oops.
			Code("UNKNOWN_NAME").
			In("handshake").
			With("protocol", c.ProtocolName).
			Wrapf(err, "invalid protocol name")
	}
	return id, nil
}

// validateRole checks that the role is Alice or Bob.
func (c *Config) validateRole() error {
	if c.Role != RoleInitiator && c.Role != RoleResponder {
		return oops.
			Code("INVALID_PARAM").
			In("handshake").
			With("role", int(c.Role)).
			With("protocol", c.ProtocolName).
			Wrapf(noiseerr.ErrInvalidParam, "role must be initiator or responder")
	}
	return nil
}

// validatePSK checks the pre-shared key length when one is set.
func (c *Config) validatePSK() error {
	if c.PSK != nil && !internal.ValidateKeySize(c.PSK, PSKLen) {
		return oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("psk_length", len(c.PSK)).
			With("protocol", c.ProtocolName).
			Wrapf(noiseerr.ErrInvalidLength, "pre-shared key must be %d bytes", PSKLen)
	}
	return nil
}

// clone returns a deep copy of c.
func (c *Config) clone() *Config {
	out := *c
	out.LocalStatic = cloneBytes(c.LocalStatic)
	out.RemoteStatic = cloneBytes(c.RemoteStatic)
	out.PSK = cloneBytes(c.PSK)
	out.Prologue = cloneBytes(c.Prologue)
	out.LocalEphemeral = cloneBytes(c.LocalEphemeral)
	out.RemoteEphemeral = cloneBytes(c.RemoteEphemeral)
	out.LocalHybridEphemeral = c.LocalHybridEphemeral.Clone()
	out.RemoteHybridEphemeral = cloneBytes(c.RemoteHybridEphemeral)
	return &out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
