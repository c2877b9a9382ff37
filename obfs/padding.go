package obfs

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/samber/oops"
)

// MaxFrameLen is the largest message a 2-byte length prefix can carry.
const MaxFrameLen = 65535

const paddingHeaderLen = 2

// PaddingModifier appends a random amount of random padding to handshake
// messages. Wire format: [len:2 BE][data][padding].
type PaddingModifier struct {
	name       string
	minPadding int
	maxPadding int
	random     io.Reader
}

// NewPaddingModifier creates a padding modifier that adds between
// minPadding and maxPadding bytes, inclusive.
func NewPaddingModifier(name string, minPadding, maxPadding int) (*PaddingModifier, error) {
	if minPadding < 0 {
		return nil, oops.
			Code("INVALID_PADDING").
			In("obfs").
			With("min_padding", minPadding).
			Wrapf(noiseerr.ErrInvalidParam, "minimum padding cannot be negative")
	}
	if maxPadding < minPadding {
		return nil, oops.
			Code("INVALID_PADDING").
			In("obfs").
			With("min_padding", minPadding).
			With("max_padding", maxPadding).
			Wrapf(noiseerr.ErrInvalidParam, "maximum padding cannot be less than minimum padding")
	}
	if maxPadding > MaxFrameLen-paddingHeaderLen {
		return nil, oops.
			Code("INVALID_PADDING").
			In("obfs").
			With("max_padding", maxPadding).
			Wrapf(noiseerr.ErrInvalidParam, "maximum padding exceeds frame size")
	}
	return &PaddingModifier{
		name:       name,
		minPadding: minPadding,
		maxPadding: maxPadding,
		random:     rand.Reader,
	}, nil
}

// WithRandom replaces the randomness source used for padding lengths and
// contents.
func (p *PaddingModifier) WithRandom(r io.Reader) *PaddingModifier {
	p.random = r
	return p
}

// ModifyOutbound prefixes the original length and appends padding.
func (p *PaddingModifier) ModifyOutbound(phase Phase, data []byte) ([]byte, error) {
	if phase == PhaseFinal {
		return data, nil
	}

	size, err := p.paddingSize()
	if err != nil {
		return nil, err
	}
	if room := MaxFrameLen - paddingHeaderLen - len(data); size > room {
		if room < 0 {
			return nil, oops.
				Code("MESSAGE_TOO_LARGE").
				In("obfs").
				With("data_length", len(data)).
				With("modifier_name", p.name).
				Wrapf(noiseerr.ErrInvalidLength, "message too large to pad")
		}
		size = room
	}

	out := make([]byte, paddingHeaderLen+len(data)+size)
	binary.BigEndian.PutUint16(out, uint16(len(data)))
	copy(out[paddingHeaderLen:], data)
	if _, err := io.ReadFull(p.random, out[paddingHeaderLen+len(data):]); err != nil {
		return nil, oops.
			Code("PADDING_RANDOM_FAILED").
			In("obfs").
			With("modifier_name", p.name).
			Wrapf(err, "failed to generate padding")
	}
	return out, nil
}

func (p *PaddingModifier) paddingSize() (int, error) {
	span := p.maxPadding - p.minPadding
	if span == 0 {
		return p.minPadding, nil
	}
	var buf [4]byte
	if _, err := io.ReadFull(p.random, buf[:]); err != nil {
		return 0, oops.
			Code("PADDING_RANDOM_FAILED").
			In("obfs").
			With("modifier_name", p.name).
			Wrapf(err, "failed to choose padding length")
	}
	return p.minPadding + int(binary.BigEndian.Uint32(buf[:])%uint32(span+1)), nil
}

// ModifyInbound strips the length prefix and padding.
func (p *PaddingModifier) ModifyInbound(phase Phase, data []byte) ([]byte, error) {
	if phase == PhaseFinal {
		return data, nil
	}
	if len(data) < paddingHeaderLen {
		return nil, oops.
			Code("INVALID_PADDED_DATA").
			In("obfs").
			With("data_length", len(data)).
			With("modifier_name", p.name).
			Wrapf(noiseerr.ErrInvalidLength, "padded data too short, missing length prefix")
	}
	n := int(binary.BigEndian.Uint16(data))
	if paddingHeaderLen+n > len(data) {
		return nil, oops.
			Code("INVALID_PADDED_DATA").
			In("obfs").
			With("original_length", n).
			With("data_length", len(data)).
			With("modifier_name", p.name).
			Wrapf(noiseerr.ErrInvalidLength, "invalid original length in padded data")
	}
	return append([]byte(nil), data[paddingHeaderLen:paddingHeaderLen+n]...), nil
}

// Name returns the modifier name.
func (p *PaddingModifier) Name() string {
	return p.name
}
