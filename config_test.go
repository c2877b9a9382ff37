package noise

import (
	"testing"
	"time"

	"github.com/go-i2p/go-noise/handshake"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/obfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnConfigDefaults(t *testing.T) {
	cfg := NewConnConfig(testProtocol, true)
	assert.Equal(t, testProtocol, cfg.ProtocolName)
	assert.True(t, cfg.Initiator)
	assert.Equal(t, DefaultHandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, time.Duration(0), cfg.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.WriteTimeout)
	assert.Equal(t, 3, cfg.HandshakeRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Nil(t, cfg.GetModifierChain())
	assert.False(t, cfg.ObfuscateLengths)
	assert.NoError(t, cfg.Validate())
}

func TestConnConfigBuilders(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	xor := obfs.NewXORModifier("xor", nil)
	cfg := NewConnConfig(testProtocol, false).
		WithStaticKey(key).
		WithRemoteKey(key).
		WithPSK(key).
		WithPrologue(key).
		WithHandshakeTimeout(time.Second).
		WithReadTimeout(2 * time.Second).
		WithWriteTimeout(3 * time.Second).
		WithHandshakeRetries(-1).
		WithRetryBackoff(time.Millisecond).
		WithModifiers(xor).
		AddModifier(obfs.NewXORModifier("second", []byte{1})).
		WithLengthObfuscation(true)

	key[0] = 'X'
	for _, b := range [][]byte{cfg.StaticKey, cfg.RemoteKey, cfg.PSK, cfg.Prologue} {
		assert.Equal(t, byte('0'), b[0])
	}
	assert.Equal(t, handshake.RoleResponder, cfg.Role())
	assert.Equal(t, time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, -1, cfg.HandshakeRetries)
	assert.Equal(t, time.Millisecond, cfg.RetryBackoff)
	assert.True(t, cfg.ObfuscateLengths)

	chain := cfg.GetModifierChain()
	require.NotNil(t, chain)
	assert.Equal(t, []string{"xor", "second"}, chain.ModifierNames())

	cfg.ClearModifiers()
	assert.Nil(t, cfg.GetModifierChain())

	hc := cfg.handshakeConfig()
	assert.Equal(t, testProtocol, hc.ProtocolName)
	assert.Equal(t, handshake.RoleResponder, hc.Role)
	assert.Equal(t, cfg.PSK, hc.PSK)
	assert.Equal(t, cfg.Prologue, hc.Prologue)
}

func TestConnConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConnConfig)
		wantErr error
	}{
		{"valid", func(*ConnConfig) {}, nil},
		{"empty protocol", func(c *ConnConfig) { c.ProtocolName = "" }, noiseerr.ErrInvalidParam},
		{"bad protocol", func(c *ConnConfig) { c.ProtocolName = "Noise_XX_25519" }, noiseerr.ErrUnknownName},
		{"short psk", func(c *ConnConfig) { c.PSK = []byte{1} }, noiseerr.ErrInvalidLength},
		{"zero timeout", func(c *ConnConfig) { c.HandshakeTimeout = 0 }, noiseerr.ErrInvalidParam},
		{"negative read timeout", func(c *ConnConfig) { c.ReadTimeout = -1 }, noiseerr.ErrInvalidParam},
		{"negative write timeout", func(c *ConnConfig) { c.WriteTimeout = -1 }, noiseerr.ErrInvalidParam},
		{"bad retries", func(c *ConnConfig) { c.HandshakeRetries = -2 }, noiseerr.ErrInvalidParam},
		{"bad backoff", func(c *ConnConfig) { c.RetryBackoff = -time.Second }, noiseerr.ErrInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConnConfig(testProtocol, true)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
