package suite

import (
	"io"

	"github.com/cloudflare/circl/dh/x448"
	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
	"golang.org/x/crypto/curve25519"
)

type curve25519DH struct{}

func (curve25519DH) ID() protocol.ID    { return protocol.DHCurve25519 }
func (curve25519DH) Name() string       { return "25519" }
func (curve25519DH) PublicKeyLen() int  { return curve25519.PointSize }
func (curve25519DH) PrivateKeyLen() int { return curve25519.ScalarSize }
func (curve25519DH) SharedKeyLen() int  { return curve25519.PointSize }

func (d curve25519DH) GenerateKeypair(rng io.Reader) (*Keypair, error) {
	priv, err := readRandom(rng, curve25519.ScalarSize)
	if err != nil {
		return nil, err
	}
	pub, err := d.PublicKey(priv)
	if err != nil {
		return nil, err
	}
	return &Keypair{Private: priv, Public: pub}, nil
}

func (curve25519DH) PublicKey(private []byte) ([]byte, error) {
	if len(private) != curve25519.ScalarSize {
		return nil, keyLengthError("25519", "private", len(private), curve25519.ScalarSize)
	}
	pub, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, oops.
			Code("INVALID_PARAM").
			In("suite").
			Wrapf(noiseerr.ErrInvalidParam, "cannot derive 25519 public key: %v", err)
	}
	return pub, nil
}

func (curve25519DH) DH(private, public []byte) ([]byte, error) {
	if len(private) != curve25519.ScalarSize {
		return nil, keyLengthError("25519", "private", len(private), curve25519.ScalarSize)
	}
	if len(public) != curve25519.PointSize {
		return nil, keyLengthError("25519", "public", len(public), curve25519.PointSize)
	}
	shared, err := curve25519.X25519(private, public)
	if err != nil {
		// x/crypto rejects low-order points with an all-zero output.
		return nil, oops.
			Code("INVALID_PUBLIC_KEY").
			In("suite").
			Wrapf(noiseerr.ErrInvalidPublicKey, "25519: %v", err)
	}
	return shared, nil
}

type curve448DH struct{}

func (curve448DH) ID() protocol.ID    { return protocol.DHCurve448 }
func (curve448DH) Name() string       { return "448" }
func (curve448DH) PublicKeyLen() int  { return x448.Size }
func (curve448DH) PrivateKeyLen() int { return x448.Size }
func (curve448DH) SharedKeyLen() int  { return x448.Size }

func (d curve448DH) GenerateKeypair(rng io.Reader) (*Keypair, error) {
	priv, err := readRandom(rng, x448.Size)
	if err != nil {
		return nil, err
	}
	pub, err := d.PublicKey(priv)
	if err != nil {
		return nil, err
	}
	return &Keypair{Private: priv, Public: pub}, nil
}

func (curve448DH) PublicKey(private []byte) ([]byte, error) {
	if len(private) != x448.Size {
		return nil, keyLengthError("448", "private", len(private), x448.Size)
	}
	var secret, pub x448.Key
	copy(secret[:], private)
	x448.KeyGen(&pub, &secret)
	wipeKey448(&secret)
	return pub[:], nil
}

func (curve448DH) DH(private, public []byte) ([]byte, error) {
	if len(private) != x448.Size {
		return nil, keyLengthError("448", "private", len(private), x448.Size)
	}
	if len(public) != x448.Size {
		return nil, keyLengthError("448", "public", len(public), x448.Size)
	}
	var secret, pub, shared x448.Key
	copy(secret[:], private)
	copy(pub[:], public)
	ok := x448.Shared(&shared, &secret, &pub)
	wipeKey448(&secret)
	if !ok {
		return nil, oops.
			Code("INVALID_PUBLIC_KEY").
			In("suite").
			Wrapf(noiseerr.ErrInvalidPublicKey, "448: low order public key")
	}
	return shared[:], nil
}

func wipeKey448(k *x448.Key) {
	internal.SecureZero(k[:])
}

func keyLengthError(alg, which string, got, want int) error {
	return oops.
		Code("INVALID_LENGTH").
		In("suite").
		With("algorithm", alg).
		With("key", which).
		With("length", got).
		With("expected", want).
		Wrapf(noiseerr.ErrInvalidLength, "%s %s key must be %d bytes", alg, which, want)
}
