package obfs

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/dchest/siphash"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

// SipKeys seeds one direction of length masking.
type SipKeys struct {
	K1, K2 uint64
	IV     uint64
}

const (
	sipInfoAliceToBob = "noise length mask a->b"
	sipInfoBobToAlice = "noise length mask b->a"
)

// DeriveSipKeys derives the send and receive SipKeys from a shared secret.
// The secret must not be observable on the wire: use a key exported from
// the handshake chaining key, never the handshake hash. Both peers derive
// the same two streams; initiator selects which one is used for sending.
func DeriveSipKeys(secret []byte, initiator bool) (send, recv SipKeys, err error) {
	if len(secret) == 0 {
		return SipKeys{}, SipKeys{}, oops.
			Code("MISSING_SECRET").
			In("obfs").
			Wrapf(noiseerr.ErrInvalidParam, "secret required to derive length masks")
	}
	a2b, err := deriveSip(secret, sipInfoAliceToBob)
	if err != nil {
		return SipKeys{}, SipKeys{}, err
	}
	b2a, err := deriveSip(secret, sipInfoBobToAlice)
	if err != nil {
		return SipKeys{}, SipKeys{}, err
	}
	if initiator {
		return a2b, b2a, nil
	}
	return b2a, a2b, nil
}

func deriveSip(secret []byte, info string) (SipKeys, error) {
	var buf [24]byte
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), buf[:]); err != nil {
		return SipKeys{}, oops.
			Code("SIPHASH_KDF_FAILED").
			In("obfs").
			Wrapf(err, "failed to derive siphash keys")
	}
	return SipKeys{
		K1: binary.LittleEndian.Uint64(buf[0:8]),
		K2: binary.LittleEndian.Uint64(buf[8:16]),
		IV: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// SipHashLengthModifier masks 2-byte transport frame lengths with a
// SipHash-2-4 keystream, one IV chain per direction. Each call advances
// the chain, so frames must be processed in order.
type SipHashLengthModifier struct {
	name string
	out  SipKeys
	in   SipKeys
}

// NewSipHashLengthModifier creates a length modifier from per-direction keys.
func NewSipHashLengthModifier(name string, send, recv SipKeys) *SipHashLengthModifier {
	return &SipHashLengthModifier{name: name, out: send, in: recv}
}

// ModifyOutbound masks a frame length in the transport phase.
func (m *SipHashLengthModifier) ModifyOutbound(phase Phase, data []byte) ([]byte, error) {
	if phase != PhaseFinal || len(data) != 2 {
		return data, nil
	}
	return applyMask(data, nextMask(&m.out)), nil
}

// ModifyInbound unmasks a frame length in the transport phase.
func (m *SipHashLengthModifier) ModifyInbound(phase Phase, data []byte) ([]byte, error) {
	if phase != PhaseFinal || len(data) != 2 {
		return data, nil
	}
	return applyMask(data, nextMask(&m.in)), nil
}

// Name returns the modifier name.
func (m *SipHashLengthModifier) Name() string {
	return m.name
}

func nextMask(k *SipKeys) uint16 {
	var iv [8]byte
	binary.LittleEndian.PutUint64(iv[:], k.IV)
	k.IV = siphash.Hash(k.K1, k.K2, iv[:])
	return uint16(k.IV)
}

func applyMask(data []byte, mask uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, binary.BigEndian.Uint16(data)^mask)
	return out
}
