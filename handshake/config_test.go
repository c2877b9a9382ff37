package handshake

import (
	"crypto/rand"
	"testing"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/suite"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("Noise_NN_25519_ChaChaPoly_SHA256", RoleResponder)
	assert.Equal(t, "Noise_NN_25519_ChaChaPoly_SHA256", cfg.ProtocolName)
	assert.Equal(t, RoleResponder, cfg.Role)
	assert.Equal(t, rand.Reader, cfg.Random)
	assert.NoError(t, cfg.Validate())
}

func TestConfigBuildersCopy(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	kp := &suite.Keypair{Private: []byte{1, 2}, Public: []byte{3, 4}}
	cfg := NewConfig("Noise_NN_25519_ChaChaPoly_SHA256", RoleInitiator).
		WithLocalStatic(key).
		WithRemoteStatic(key).
		WithPSK(key).
		WithPrologue(key).
		WithLocalEphemeral(key).
		WithRemoteEphemeral(key).
		WithLocalHybridEphemeral(kp).
		WithRemoteHybridEphemeral(key)

	key[0] = 'X'
	kp.Private[0] = 9

	for _, b := range [][]byte{cfg.LocalStatic, cfg.RemoteStatic, cfg.PSK, cfg.Prologue,
		cfg.LocalEphemeral, cfg.RemoteEphemeral, cfg.RemoteHybridEphemeral} {
		assert.Equal(t, byte('0'), b[0])
	}
	assert.Equal(t, byte(1), cfg.LocalHybridEphemeral.Private[0])

	clone := cfg.clone()
	clone.PSK[0] = 'Y'
	assert.Equal(t, byte('0'), cfg.PSK[0])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want error
	}{
		{"empty name", NewConfig("", RoleInitiator), noiseerr.ErrInvalidParam},
		{"unknown name", NewConfig("Noise_NN_25519_ChaChaPoly", RoleInitiator), noiseerr.ErrUnknownName},
		{"zero role", NewConfig("Noise_NN_25519_ChaChaPoly_SHA256", 0), noiseerr.ErrInvalidParam},
		{"long psk", NewConfig("Noise_NN_25519_ChaChaPoly_SHA256", RoleInitiator).WithPSK(make([]byte, 33)), noiseerr.ErrInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.want)
		})
	}
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "initiator", RoleInitiator.String())
	assert.Equal(t, "responder", RoleResponder.String())
	assert.Equal(t, "unknown", Role(0).String())
	assert.Equal(t, "split", StateSplit.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "read_message", ActionReadMessage.String())
	assert.Equal(t, "ekem1", TokenEKEM1.String())
	assert.Equal(t, "<-", BobToAlice.String())
}
