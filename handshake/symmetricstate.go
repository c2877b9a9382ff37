package handshake

import (
	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/suite"
	"github.com/samber/oops"
)

// SymmetricState holds the chaining key, the handshake hash and the
// transient cipher used while a handshake is in progress. It is consumed
// by Split.
type SymmetricState struct {
	hash suite.Hash
	cs   *CipherState
	ck   []byte
	h    []byte
	done bool
}

// NewSymmetricState returns a state initialised for protocolName.
func NewSymmetricState(protocolName string, c suite.Cipher, h suite.Hash) *SymmetricState {
	st := &SymmetricState{hash: h, cs: NewCipherState(c)}
	st.InitializeSymmetric([]byte(protocolName))
	return st
}

// InitializeSymmetric sets h to the name padded with zeros to HASHLEN, or
// to its hash when longer, and copies h into the chaining key.
func (st *SymmetricState) InitializeSymmetric(protocolName []byte) {
	hashLen := st.hash.HashLen()
	if len(protocolName) <= hashLen {
		st.h = make([]byte, hashLen)
		copy(st.h, protocolName)
	} else {
		st.h = st.hash.Sum(protocolName)
	}
	st.ck = append([]byte(nil), st.h...)
	st.cs.InitializeKey(nil)
	st.done = false
}

// HasKey reports whether the transient cipher has a key.
func (st *SymmetricState) HasKey() bool {
	return !st.done && st.cs.HasKey()
}

// HandshakeHash returns a copy of h.
func (st *SymmetricState) HandshakeHash() []byte {
	return append([]byte(nil), st.h...)
}

// MixKey feeds input key material into the chaining key and rekeys the
// transient cipher.
func (st *SymmetricState) MixKey(ikm []byte) error {
	if err := st.usable(); err != nil {
		return err
	}
	out, err := st.hash.HKDF(st.ck, ikm, 2)
	if err != nil {
		return err
	}
	return st.rekey(out[0], out[1])
}

// MixHash sets h = HASH(h || data).
func (st *SymmetricState) MixHash(data []byte) error {
	if err := st.usable(); err != nil {
		return err
	}
	st.h = st.hash.Sum(st.h, data)
	return nil
}

// MixKeyAndHash mixes a pre-shared key into the chaining key, the handshake
// hash and the transient cipher.
func (st *SymmetricState) MixKeyAndHash(ikm []byte) error {
	if err := st.usable(); err != nil {
		return err
	}
	out, err := st.hash.HKDF(st.ck, ikm, 3)
	if err != nil {
		return err
	}
	defer internal.SecureZero(out[1])
	st.h = st.hash.Sum(st.h, out[1])
	return st.rekey(out[0], out[2])
}

// EncryptAndHash encrypts plaintext with h as associated data when a key is
// set and mixes the result into h.
func (st *SymmetricState) EncryptAndHash(plaintext []byte) ([]byte, error) {
	if err := st.usable(); err != nil {
		return nil, err
	}
	var out []byte
	if st.cs.HasKey() {
		ct, err := st.cs.EncryptWithAd(st.h, plaintext)
		if err != nil {
			return nil, err
		}
		out = ct
	} else {
		out = append([]byte(nil), plaintext...)
	}
	st.h = st.hash.Sum(st.h, out)
	return out, nil
}

// DecryptAndHash reverses EncryptAndHash. h is left unchanged on failure.
func (st *SymmetricState) DecryptAndHash(ciphertext []byte) ([]byte, error) {
	if err := st.usable(); err != nil {
		return nil, err
	}
	var out []byte
	if st.cs.HasKey() {
		pt, err := st.cs.DecryptWithAd(st.h, ciphertext)
		if err != nil {
			return nil, err
		}
		out = pt
	} else {
		out = append([]byte(nil), ciphertext...)
	}
	st.h = st.hash.Sum(st.h, ciphertext)
	return out, nil
}

// ExportKey derives a secret bound to the chaining key and label. The value
// is independent of the transport keys and of the public handshake hash.
func (st *SymmetricState) ExportKey(label []byte) ([]byte, error) {
	if err := st.usable(); err != nil {
		return nil, err
	}
	out, err := st.hash.HKDF(st.ck, label, 2)
	if err != nil {
		return nil, err
	}
	internal.SecureZero(out[1])
	return out[0], nil
}

// Split derives the two transport cipher states, Alice to Bob first, and
// destroys the symmetric state.
//
// ExportKey must be called before Split if both are wanted.
func (st *SymmetricState) Split() (*CipherState, *CipherState, error) {
	if err := st.usable(); err != nil {
		return nil, nil, err
	}
	out, err := st.hash.HKDF(st.ck, nil, 2)
	if err != nil {
		return nil, nil, err
	}
	defer internal.SecureZero(out[0])
	defer internal.SecureZero(out[1])

	keyLen := st.cs.Cipher().KeyLen()
	c1 := NewCipherState(st.cs.Cipher())
	if err := c1.InitializeKey(out[0][:keyLen]); err != nil {
		return nil, nil, err
	}
	c2 := NewCipherState(st.cs.Cipher())
	if err := c2.InitializeKey(out[1][:keyLen]); err != nil {
		c1.Destroy()
		return nil, nil, err
	}
	st.Destroy()
	return c1, c2, nil
}

// Destroy zeroes the chaining key, the hash and the transient cipher.
func (st *SymmetricState) Destroy() {
	internal.SecureZero(st.ck)
	internal.SecureZero(st.h)
	st.ck = nil
	st.h = nil
	st.cs.Destroy()
	st.done = true
}

// rekey installs a new chaining key and a cipher key truncated to the
// cipher's key length.
func (st *SymmetricState) rekey(ck, tempK []byte) error {
	defer internal.SecureZero(tempK)
	internal.SecureZero(st.ck)
	st.ck = ck
	return st.cs.InitializeKey(tempK[:st.cs.Cipher().KeyLen()])
}

func (st *SymmetricState) usable() error {
	if st.done {
		return oops.
			Code("INVALID_STATE").
			In("handshake").
			Wrapf(noiseerr.ErrInvalidState, "symmetric state has been split or destroyed")
	}
	return nil
}
