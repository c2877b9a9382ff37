package suite

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	cipherKeyLen = 32
	cipherTagLen = 16
)

type chaChaPolyCipher struct{}

func (chaChaPolyCipher) ID() protocol.ID { return protocol.CipherChaChaPoly }
func (chaChaPolyCipher) Name() string    { return "ChaChaPoly" }
func (chaChaPolyCipher) KeyLen() int     { return cipherKeyLen }
func (chaChaPolyCipher) TagLen() int     { return cipherTagLen }

func (chaChaPolyCipher) New(key []byte) (AEAD, error) {
	if len(key) != cipherKeyLen {
		return nil, keyLengthError("ChaChaPoly", "cipher", len(key), cipherKeyLen)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, cipherInitError("ChaChaPoly", err)
	}
	return &boundAEAD{aead: aead, name: "ChaChaPoly", nonce: chaChaNonce}, nil
}

type aesGCMCipher struct{}

func (aesGCMCipher) ID() protocol.ID { return protocol.CipherAESGCM }
func (aesGCMCipher) Name() string    { return "AESGCM" }
func (aesGCMCipher) KeyLen() int     { return cipherKeyLen }
func (aesGCMCipher) TagLen() int     { return cipherTagLen }

func (aesGCMCipher) New(key []byte) (AEAD, error) {
	if len(key) != cipherKeyLen {
		return nil, keyLengthError("AESGCM", "cipher", len(key), cipherKeyLen)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cipherInitError("AESGCM", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cipherInitError("AESGCM", err)
	}
	return &boundAEAD{aead: aead, name: "AESGCM", nonce: aesGCMNonce}, nil
}

// ChaChaPoly encodes the counter little-endian after four zero bytes.
func chaChaNonce(dst *[12]byte, n uint64) {
	binary.LittleEndian.PutUint64(dst[4:], n)
}

// AESGCM encodes the counter big-endian after four zero bytes.
func aesGCMNonce(dst *[12]byte, n uint64) {
	binary.BigEndian.PutUint64(dst[4:], n)
}

type boundAEAD struct {
	aead  cipher.AEAD
	name  string
	nonce func(*[12]byte, uint64)
}

func (b *boundAEAD) Encrypt(out []byte, n uint64, ad, plaintext []byte) []byte {
	var nonce [12]byte
	b.nonce(&nonce, n)
	return b.aead.Seal(out, nonce[:], plaintext, ad)
}

func (b *boundAEAD) Decrypt(out []byte, n uint64, ad, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < cipherTagLen {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("suite").
			With("cipher", b.name).
			With("length", len(ciphertext)).
			Wrapf(noiseerr.ErrInvalidLength, "ciphertext shorter than the authentication tag")
	}
	var nonce [12]byte
	b.nonce(&nonce, n)
	plaintext, err := b.aead.Open(out, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, oops.
			Code("MAC_FAILURE").
			In("suite").
			With("cipher", b.name).
			With("nonce", n).
			Wrapf(noiseerr.ErrMACFailure, "authentication failed")
	}
	return plaintext, nil
}

func cipherInitError(name string, err error) error {
	return oops.
		Code("INVALID_PARAM").
		In("suite").
		With("cipher", name).
		Wrapf(noiseerr.ErrInvalidParam, "cannot initialize %s: %v", name, err)
}
