// Package suite supplies the algorithm backends used by the handshake: DH
// functions, KEMs for hybrid forward secrecy, AEAD ciphers and hash
// functions, each selected by its protocol identifier.
package suite

import (
	"hash"
	"io"

	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
)

// Keypair is a private key and its public key. The private key is owned by
// the Keypair and zeroed by Destroy.
type Keypair struct {
	Private []byte
	Public  []byte
}

// Destroy overwrites both halves of the keypair.
func (k *Keypair) Destroy() {
	if k == nil {
		return
	}
	internal.SecureZero(k.Private)
	internal.SecureZero(k.Public)
}

// Clone returns an independent copy of k.
func (k *Keypair) Clone() *Keypair {
	if k == nil {
		return nil
	}
	return &Keypair{
		Private: append([]byte(nil), k.Private...),
		Public:  append([]byte(nil), k.Public...),
	}
}

// DH implements Diffie-Hellman key agreement.
type DH interface {
	ID() protocol.ID
	Name() string
	PublicKeyLen() int
	PrivateKeyLen() int
	// SharedKeyLen is the number of bytes returned by DH.
	SharedKeyLen() int
	GenerateKeypair(rng io.Reader) (*Keypair, error)
	// PublicKey derives the public key of a private key.
	PublicKey(private []byte) ([]byte, error)
	DH(private, public []byte) ([]byte, error)
}

// KEM implements a key encapsulation mechanism, used for the hybrid
// exchange of the hfs modifier.
type KEM interface {
	ID() protocol.ID
	Name() string
	PublicKeyLen() int
	CiphertextLen() int
	SharedKeyLen() int
	GenerateKeypair(rng io.Reader) (*Keypair, error)
	Encapsulate(public []byte, rng io.Reader) (ciphertext, shared []byte, err error)
	Decapsulate(private, ciphertext []byte) ([]byte, error)
}

// Cipher is an AEAD algorithm with 32-byte keys.
type Cipher interface {
	ID() protocol.ID
	Name() string
	KeyLen() int
	TagLen() int
	// New binds the algorithm to key.
	New(key []byte) (AEAD, error)
}

// AEAD is a Cipher bound to a key. Nonces are 64-bit counters.
type AEAD interface {
	// Encrypt appends the ciphertext and tag of plaintext to out.
	Encrypt(out []byte, n uint64, ad, plaintext []byte) []byte
	// Decrypt authenticates ciphertext and appends the plaintext to out.
	Decrypt(out []byte, n uint64, ad, ciphertext []byte) ([]byte, error)
}

// Hash is a hash function together with the HKDF built on it.
type Hash interface {
	ID() protocol.ID
	Name() string
	HashLen() int
	BlockLen() int
	New() hash.Hash
	// Sum hashes the concatenation of data.
	Sum(data ...[]byte) []byte
	// HKDF derives outputs values of HashLen bytes from the chaining key
	// and input key material. outputs must be 2 or 3.
	HKDF(chainingKey, inputKeyMaterial []byte, outputs int) ([][]byte, error)
}

// NewDH returns the DH backend for id.
func NewDH(id protocol.ID) (DH, error) {
	switch id {
	case protocol.DHCurve25519:
		return curve25519DH{}, nil
	case protocol.DHCurve448:
		return curve448DH{}, nil
	}
	return nil, noBackend("dh", id)
}

// NewKEM returns the KEM backend for id. DH identifiers are accepted and
// adapted with DHAsKEM.
func NewKEM(id protocol.ID) (KEM, error) {
	if id == protocol.DHMLKEM768 {
		return newMLKEM768(), nil
	}
	dh, err := NewDH(id)
	if err != nil {
		return nil, noBackend("kem", id)
	}
	return DHAsKEM(dh), nil
}

// NewCipher returns the cipher backend for id.
func NewCipher(id protocol.ID) (Cipher, error) {
	switch id {
	case protocol.CipherChaChaPoly:
		return chaChaPolyCipher{}, nil
	case protocol.CipherAESGCM:
		return aesGCMCipher{}, nil
	}
	return nil, noBackend("cipher", id)
}

// NewHash returns the hash backend for id.
func NewHash(id protocol.ID) (Hash, error) {
	switch id {
	case protocol.HashSHA256:
		return sha256Hash, nil
	case protocol.HashSHA512:
		return sha512Hash, nil
	case protocol.HashBLAKE2s:
		return blake2sHash, nil
	case protocol.HashBLAKE2b:
		return blake2bHash, nil
	}
	return nil, noBackend("hash", id)
}

func noBackend(kind string, id protocol.ID) error {
	return oops.
		Code("UNKNOWN_ID").
		In("suite").
		With("kind", kind).
		With("id", id.String()).
		Wrapf(noiseerr.ErrUnknownID, "no %s backend for %s", kind, id)
}

func readRandom(rng io.Reader, n int) ([]byte, error) {
	b, err := internal.RandomBytes(rng, n)
	if err != nil {
		return nil, oops.
			Code("RANDOM_FAILED").
			In("suite").
			With("length", n).
			Wrapf(err, "failed to read random bytes")
	}
	return b, nil
}
