package obfs

import (
	"crypto/aes"
	"crypto/cipher"
	"sync"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/samber/oops"
)

// aesBlockLen is the span of a handshake message that gets encrypted: one
// 32-byte ephemeral public key, two AES blocks.
const aesBlockLen = 32

// AESModifier hides the leading ephemeral key of the first two handshake
// messages with AES-256-CBC. Message 0 is encrypted under the published IV;
// message 1 continues the CBC chain from the last ciphertext block of
// message 0. Later messages and transport frames pass through unchanged.
//
// The chain state lives in the modifier, so each connection needs its own
// instance; listeners get one per connection from
// ListenerConfig.WithModifierFactory. Place it first in a chain so it sees the raw handshake bytes.
type AESModifier struct {
	name  string
	block cipher.Block
	iv    []byte

	mu    sync.Mutex
	chain []byte
}

// NewAESModifier creates an AESModifier from a 32-byte key and a 16-byte IV.
func NewAESModifier(name string, key, iv []byte) (*AESModifier, error) {
	if len(key) != 32 {
		return nil, oops.
			Code("INVALID_AES_KEY").
			In("obfs").
			With("key_length", len(key)).
			Wrapf(noiseerr.ErrInvalidLength, "aes obfuscation key must be 32 bytes")
	}
	if len(iv) != aes.BlockSize {
		return nil, oops.
			Code("INVALID_AES_IV").
			In("obfs").
			With("iv_length", len(iv)).
			Wrapf(noiseerr.ErrInvalidLength, "aes obfuscation iv must be %d bytes", aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.
			Code("AES_CIPHER_CREATION_FAILED").
			In("obfs").
			Wrap(err)
	}
	return &AESModifier{
		name:  name,
		block: block,
		iv:    append([]byte(nil), iv...),
	}, nil
}

// ModifyOutbound encrypts the leading ephemeral key.
func (m *AESModifier) ModifyOutbound(phase Phase, data []byte) ([]byte, error) {
	return m.apply(phase, data, true)
}

// ModifyInbound decrypts the leading ephemeral key.
func (m *AESModifier) ModifyInbound(phase Phase, data []byte) ([]byte, error) {
	return m.apply(phase, data, false)
}

// Name returns the modifier name.
func (m *AESModifier) Name() string {
	return m.name
}

func (m *AESModifier) apply(phase Phase, data []byte, encrypt bool) ([]byte, error) {
	if phase == PhaseFinal {
		return data, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var iv []byte
	switch phase {
	case PhaseInitial:
		iv = m.iv
	case PhaseExchange:
		if m.chain == nil {
			// Only the second message continues the chain.
			return data, nil
		}
		iv = m.chain
	}
	if len(data) < aesBlockLen {
		return nil, oops.
			Code("AES_MESSAGE_TOO_SHORT").
			In("obfs").
			With("modifier_name", m.name).
			With("length", len(data)).
			Wrapf(noiseerr.ErrInvalidLength, "handshake message shorter than an ephemeral key")
	}

	out := append([]byte(nil), data...)
	head := out[:aesBlockLen]
	if encrypt {
		cipher.NewCBCEncrypter(m.block, iv).CryptBlocks(head, head)
		m.advance(phase, head[aesBlockLen-aes.BlockSize:])
		return out, nil
	}
	// The chain continues from ciphertext, so record it before decrypting.
	m.advance(phase, head[aesBlockLen-aes.BlockSize:])
	cipher.NewCBCDecrypter(m.block, iv).CryptBlocks(head, head)
	return out, nil
}

// advance records the CBC state after message 0 and drops it after message 1.
func (m *AESModifier) advance(phase Phase, lastBlock []byte) {
	if phase == PhaseInitial {
		m.chain = append([]byte(nil), lastBlock...)
		return
	}
	m.chain = nil
}
