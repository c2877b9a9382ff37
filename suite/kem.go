package suite

import (
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
)

// DHAsKEM presents a DH function as a KEM. Encapsulation generates a fresh
// keypair, sends its public key as the ciphertext and uses the DH output as
// the shared secret.
func DHAsKEM(dh DH) KEM {
	return dhKEM{dh: dh}
}

type dhKEM struct {
	dh DH
}

func (k dhKEM) ID() protocol.ID    { return k.dh.ID() }
func (k dhKEM) Name() string       { return k.dh.Name() }
func (k dhKEM) PublicKeyLen() int  { return k.dh.PublicKeyLen() }
func (k dhKEM) CiphertextLen() int { return k.dh.PublicKeyLen() }
func (k dhKEM) SharedKeyLen() int  { return k.dh.SharedKeyLen() }

func (k dhKEM) GenerateKeypair(rng io.Reader) (*Keypair, error) {
	return k.dh.GenerateKeypair(rng)
}

func (k dhKEM) Encapsulate(public []byte, rng io.Reader) ([]byte, []byte, error) {
	eph, err := k.dh.GenerateKeypair(rng)
	if err != nil {
		return nil, nil, err
	}
	defer eph.Destroy()

	shared, err := k.dh.DH(eph.Private, public)
	if err != nil {
		return nil, nil, err
	}
	return append([]byte(nil), eph.Public...), shared, nil
}

func (k dhKEM) Decapsulate(private, ciphertext []byte) ([]byte, error) {
	return k.dh.DH(private, ciphertext)
}

type mlkemKEM struct {
	scheme kem.Scheme
}

func newMLKEM768() KEM {
	return mlkemKEM{scheme: mlkem768.Scheme()}
}

func (mlkemKEM) ID() protocol.ID      { return protocol.DHMLKEM768 }
func (mlkemKEM) Name() string         { return "MLKEM768" }
func (k mlkemKEM) PublicKeyLen() int  { return k.scheme.PublicKeySize() }
func (k mlkemKEM) CiphertextLen() int { return k.scheme.CiphertextSize() }
func (k mlkemKEM) SharedKeyLen() int  { return k.scheme.SharedKeySize() }

// GenerateKeypair derives the keypair from a seed read from rng so that a
// deterministic rng yields deterministic keys.
func (k mlkemKEM) GenerateKeypair(rng io.Reader) (*Keypair, error) {
	seed, err := readRandom(rng, k.scheme.SeedSize())
	if err != nil {
		return nil, err
	}
	defer internal.SecureZero(seed)

	pk, sk := k.scheme.DeriveKeyPair(seed)
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, kemError("marshal public key", err)
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return nil, kemError("marshal private key", err)
	}
	return &Keypair{Private: priv, Public: pub}, nil
}

func (k mlkemKEM) Encapsulate(public []byte, rng io.Reader) ([]byte, []byte, error) {
	if len(public) != k.scheme.PublicKeySize() {
		return nil, nil, keyLengthError("MLKEM768", "public", len(public), k.scheme.PublicKeySize())
	}
	pk, err := k.scheme.UnmarshalBinaryPublicKey(public)
	if err != nil {
		return nil, nil, oops.
			Code("INVALID_PUBLIC_KEY").
			In("suite").
			Wrapf(noiseerr.ErrInvalidPublicKey, "MLKEM768: %v", err)
	}
	seed, err := readRandom(rng, k.scheme.EncapsulationSeedSize())
	if err != nil {
		return nil, nil, err
	}
	defer internal.SecureZero(seed)

	ct, ss, err := k.scheme.EncapsulateDeterministically(pk, seed)
	if err != nil {
		return nil, nil, kemError("encapsulate", err)
	}
	return ct, ss, nil
}

func (k mlkemKEM) Decapsulate(private, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != k.scheme.CiphertextSize() {
		return nil, keyLengthError("MLKEM768", "ciphertext", len(ciphertext), k.scheme.CiphertextSize())
	}
	sk, err := k.scheme.UnmarshalBinaryPrivateKey(private)
	if err != nil {
		return nil, oops.
			Code("INVALID_PARAM").
			In("suite").
			Wrapf(noiseerr.ErrInvalidParam, "MLKEM768 private key: %v", err)
	}
	ss, err := k.scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, kemError("decapsulate", err)
	}
	return ss, nil
}

func kemError(op string, err error) error {
	return oops.
		Code("KEM_FAILED").
		In("suite").
		With("operation", op).
		Wrapf(err, "MLKEM768 %s failed", op)
}
