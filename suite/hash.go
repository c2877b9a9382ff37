package suite

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/hkdf"
)

type hashFunc struct {
	id       protocol.ID
	name     string
	hashLen  int
	blockLen int
	newFn    func() hash.Hash
}

var (
	sha256Hash = &hashFunc{
		id: protocol.HashSHA256, name: "SHA256",
		hashLen: sha256.Size, blockLen: sha256.BlockSize, newFn: sha256.New,
	}
	sha512Hash = &hashFunc{
		id: protocol.HashSHA512, name: "SHA512",
		hashLen: sha512.Size, blockLen: sha512.BlockSize, newFn: sha512.New,
	}
	blake2sHash = &hashFunc{
		id: protocol.HashBLAKE2s, name: "BLAKE2s",
		hashLen: blake2s.Size, blockLen: blake2s.BlockSize, newFn: newBLAKE2s,
	}
	blake2bHash = &hashFunc{
		id: protocol.HashBLAKE2b, name: "BLAKE2b",
		hashLen: blake2b.Size, blockLen: blake2b.BlockSize, newFn: newBLAKE2b,
	}
)

// Unkeyed BLAKE2 constructors never fail.
func newBLAKE2s() hash.Hash {
	h, _ := blake2s.New256(nil)
	return h
}

func newBLAKE2b() hash.Hash {
	h, _ := blake2b.New512(nil)
	return h
}

func (h *hashFunc) ID() protocol.ID { return h.id }
func (h *hashFunc) Name() string    { return h.name }
func (h *hashFunc) HashLen() int    { return h.hashLen }
func (h *hashFunc) BlockLen() int   { return h.blockLen }
func (h *hashFunc) New() hash.Hash  { return h.newFn() }

func (h *hashFunc) Sum(data ...[]byte) []byte {
	d := h.newFn()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// HKDF is the RFC 5869 construction with the chaining key as salt and no
// info, which produces the same outputs as the Noise HKDF.
func (h *hashFunc) HKDF(chainingKey, inputKeyMaterial []byte, outputs int) ([][]byte, error) {
	if outputs < 2 || outputs > 3 {
		return nil, oops.
			Code("INVALID_PARAM").
			In("suite").
			With("outputs", outputs).
			Wrapf(noiseerr.ErrInvalidParam, "HKDF supports 2 or 3 outputs")
	}
	if len(chainingKey) != h.hashLen {
		return nil, keyLengthError(h.name, "chaining", len(chainingKey), h.hashLen)
	}

	r := hkdf.New(h.newFn, inputKeyMaterial, chainingKey, nil)
	out := make([][]byte, outputs)
	for i := range out {
		out[i] = make([]byte, h.hashLen)
		if _, err := io.ReadFull(r, out[i]); err != nil {
			return nil, oops.
				Code("HKDF_FAILED").
				In("suite").
				With("hash", h.name).
				Wrapf(err, "HKDF expand failed")
		}
	}
	return out, nil
}
