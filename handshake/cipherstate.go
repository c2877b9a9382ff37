package handshake

import (
	"math"

	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/suite"
	"github.com/samber/oops"
)

// MaxMessageLen is the largest handshake or transport message in bytes.
const MaxMessageLen = 65535

// maxNonce is reserved for Rekey and never used for messages.
const maxNonce = math.MaxUint64

// CipherState holds a cipher key and nonce counter. The zero nonce follows
// every InitializeKey. A CipherState is not safe for concurrent use.
type CipherState struct {
	cipher suite.Cipher
	aead   suite.AEAD
	key    []byte
	n      uint64
	failed bool
}

// NewCipherState returns an empty CipherState for c.
func NewCipherState(c suite.Cipher) *CipherState {
	return &CipherState{cipher: c}
}

// Cipher returns the backend of the state.
func (cs *CipherState) Cipher() suite.Cipher {
	return cs.cipher
}

// HasKey reports whether a key is set.
func (cs *CipherState) HasKey() bool {
	return cs.aead != nil
}

// InitializeKey sets the key and resets the nonce. A nil key clears it.
func (cs *CipherState) InitializeKey(key []byte) error {
	if key == nil {
		cs.clearKey()
		cs.n = 0
		return nil
	}
	if !internal.ValidateKeySize(key, cs.cipher.KeyLen()) {
		return oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("key_length", len(key)).
			With("expected", cs.cipher.KeyLen()).
			Wrapf(noiseerr.ErrInvalidLength, "cipher key must be %d bytes", cs.cipher.KeyLen())
	}
	aead, err := cs.cipher.New(key)
	if err != nil {
		return err
	}
	cs.clearKey()
	cs.key = append([]byte(nil), key...)
	cs.aead = aead
	cs.n = 0
	cs.failed = false
	return nil
}

// SetNonce overrides the nonce counter, for transports that carry explicit
// nonces.
func (cs *CipherState) SetNonce(n uint64) {
	cs.n = n
}

// Nonce returns the nonce the next operation will use.
func (cs *CipherState) Nonce() uint64 {
	return cs.n
}

// EncryptWithAd encrypts plaintext with the current nonce and advances it.
// Running out of nonces fails the state permanently.
func (cs *CipherState) EncryptWithAd(ad, plaintext []byte) ([]byte, error) {
	if err := cs.ready(); err != nil {
		return nil, err
	}
	if len(plaintext)+cs.cipher.TagLen() > MaxMessageLen {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("length", len(plaintext)).
			Wrapf(noiseerr.ErrInvalidLength, "plaintext exceeds the maximum message size")
	}
	out := cs.aead.Encrypt(nil, cs.n, ad, plaintext)
	cs.n++
	return out, nil
}

// DecryptWithAd authenticates and decrypts ciphertext. The nonce only
// advances on success.
func (cs *CipherState) DecryptWithAd(ad, ciphertext []byte) ([]byte, error) {
	if err := cs.ready(); err != nil {
		return nil, err
	}
	if len(ciphertext) > MaxMessageLen {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("length", len(ciphertext)).
			Wrapf(noiseerr.ErrInvalidLength, "ciphertext exceeds the maximum message size")
	}
	out, err := cs.aead.Decrypt(nil, cs.n, ad, ciphertext)
	if err != nil {
		return nil, err
	}
	cs.n++
	return out, nil
}

// Rekey replaces the key with the first 32 bytes of the encryption of 32
// zero bytes under the maximum nonce. The nonce is unchanged.
func (cs *CipherState) Rekey() error {
	if cs.failed {
		return failedCipher()
	}
	if !cs.HasKey() {
		return noKey()
	}
	var zeros [32]byte
	ct := cs.aead.Encrypt(nil, maxNonce, nil, zeros[:])
	defer internal.SecureZero(ct)

	n := cs.n
	if err := cs.InitializeKey(ct[:cs.cipher.KeyLen()]); err != nil {
		return err
	}
	cs.n = n
	return nil
}

// Destroy zeroes the key and fails the state.
func (cs *CipherState) Destroy() {
	cs.clearKey()
	cs.n = 0
	cs.failed = true
}

func (cs *CipherState) ready() error {
	if cs.failed {
		return failedCipher()
	}
	if !cs.HasKey() {
		return noKey()
	}
	if cs.n == maxNonce {
		cs.failed = true
		cs.clearKey()
		return oops.
			Code("NONCE_OVERFLOW").
			In("handshake").
			Wrapf(noiseerr.ErrNonceOverflow, "cipher nonce space exhausted")
	}
	return nil
}

func (cs *CipherState) clearKey() {
	internal.SecureZero(cs.key)
	cs.key = nil
	cs.aead = nil
}

func noKey() error {
	return oops.
		Code("NO_KEY").
		In("handshake").
		Wrapf(noiseerr.ErrNoKey, "cipher state has no key")
}

func failedCipher() error {
	return oops.
		Code("INVALID_STATE").
		In("handshake").
		Wrapf(noiseerr.ErrInvalidState, "cipher state has failed")
}
