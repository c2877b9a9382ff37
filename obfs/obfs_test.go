package obfs

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcModifier struct {
	name string
	out  func(Phase, []byte) ([]byte, error)
	in   func(Phase, []byte) ([]byte, error)
}

func (f *funcModifier) ModifyOutbound(p Phase, d []byte) ([]byte, error) { return f.out(p, d) }
func (f *funcModifier) ModifyInbound(p Phase, d []byte) ([]byte, error)  { return f.in(p, d) }
func (f *funcModifier) Name() string                                     { return f.name }

func appender(name, suffix string, trace *[]string) *funcModifier {
	return &funcModifier{
		name: name,
		out: func(_ Phase, d []byte) ([]byte, error) {
			*trace = append(*trace, name+" out")
			return append(append([]byte(nil), d...), suffix...), nil
		},
		in: func(_ Phase, d []byte) ([]byte, error) {
			*trace = append(*trace, name+" in")
			if !bytes.HasSuffix(d, []byte(suffix)) {
				return nil, errors.New("missing suffix " + suffix)
			}
			return d[:len(d)-len(suffix)], nil
		},
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "initial", PhaseInitial.String())
	assert.Equal(t, "exchange", PhaseExchange.String())
	assert.Equal(t, "final", PhaseFinal.String())
	assert.Equal(t, "unknown", Phase(99).String())
	assert.Equal(t, PhaseInitial, PhaseForMessage(0))
	assert.Equal(t, PhaseExchange, PhaseForMessage(2))
}

func TestChainOrdering(t *testing.T) {
	var trace []string
	chain := NewChain("test", appender("a", "-A", &trace), nil, appender("b", "-B", &trace))

	assert.Equal(t, 2, chain.Count())
	assert.False(t, chain.IsEmpty())
	assert.Equal(t, []string{"a", "b"}, chain.ModifierNames())
	assert.Equal(t, "test", chain.Name())

	out, err := chain.ModifyOutbound(PhaseInitial, []byte("msg"))
	require.NoError(t, err)
	assert.Equal(t, "msg-A-B", string(out))

	in, err := chain.ModifyInbound(PhaseInitial, out)
	require.NoError(t, err)
	assert.Equal(t, "msg", string(in))
	assert.Equal(t, []string{"a out", "b out", "b in", "a in"}, trace)
}

func TestChainError(t *testing.T) {
	var trace []string
	chain := NewChain("test", appender("a", "-A", &trace))
	_, err := chain.ModifyInbound(PhaseExchange, []byte("no suffix"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing suffix")

	empty := NewChain("empty")
	assert.True(t, empty.IsEmpty())
	out, err := empty.ModifyOutbound(PhaseInitial, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))
}

func TestXORModifier(t *testing.T) {
	key := []byte{0x01, 0x02}
	x := NewXORModifier("xor", key)
	key[0] = 0xff

	out, err := x.ModifyOutbound(PhaseInitial, []byte{0x10, 0x20, 0x30})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x31}, out)

	in, err := x.ModifyInbound(PhaseInitial, out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20, 0x30}, in)

	same, err := x.ModifyOutbound(PhaseFinal, []byte{0x10})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10}, same)

	def := NewXORModifier("default", nil)
	out, err = def.ModifyOutbound(PhaseExchange, []byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, out)
}

func TestNewPaddingModifierValidation(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  bool
	}{
		{"zero", 0, 0, false},
		{"range", 4, 64, false},
		{"negative min", -1, 4, true},
		{"max below min", 8, 4, true},
		{"max too large", 0, MaxFrameLen, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPaddingModifier("pad", tt.min, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, noiseerr.ErrInvalidParam)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPaddingModifierRoundTrip(t *testing.T) {
	p, err := NewPaddingModifier("pad", 8, 32)
	require.NoError(t, err)
	p.WithRandom(rand.New(rand.NewSource(7)))

	msg := []byte("handshake message")
	for i := 0; i < 20; i++ {
		out, err := p.ModifyOutbound(PhaseForMessage(i), msg)
		require.NoError(t, err)
		pad := len(out) - len(msg) - paddingHeaderLen
		assert.GreaterOrEqual(t, pad, 8)
		assert.LessOrEqual(t, pad, 32)

		in, err := p.ModifyInbound(PhaseForMessage(i), out)
		require.NoError(t, err)
		assert.Equal(t, msg, in)
	}

	same, err := p.ModifyOutbound(PhaseFinal, msg)
	require.NoError(t, err)
	assert.Equal(t, msg, same)
}

func TestPaddingModifierLimits(t *testing.T) {
	p, err := NewPaddingModifier("pad", 16, 16)
	require.NoError(t, err)

	out, err := p.ModifyOutbound(PhaseInitial, make([]byte, MaxFrameLen-paddingHeaderLen-4))
	require.NoError(t, err)
	assert.Len(t, out, MaxFrameLen)

	_, err = p.ModifyOutbound(PhaseInitial, make([]byte, MaxFrameLen))
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)

	_, err = p.ModifyInbound(PhaseInitial, []byte{0})
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
	_, err = p.ModifyInbound(PhaseInitial, []byte{0, 9, 1, 2})
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
}

func TestDeriveSipKeys(t *testing.T) {
	h := bytes.Repeat([]byte{0x42}, 32)
	aSend, aRecv, err := DeriveSipKeys(h, true)
	require.NoError(t, err)
	bSend, bRecv, err := DeriveSipKeys(h, false)
	require.NoError(t, err)

	assert.Equal(t, aSend, bRecv)
	assert.Equal(t, aRecv, bSend)
	assert.NotEqual(t, aSend, aRecv)

	_, _, err = DeriveSipKeys(nil, true)
	assert.ErrorIs(t, err, noiseerr.ErrInvalidParam)
}

func TestSipHashLengthModifier(t *testing.T) {
	h := bytes.Repeat([]byte{0x17}, 64)
	aSend, aRecv, err := DeriveSipKeys(h, true)
	require.NoError(t, err)
	bSend, bRecv, err := DeriveSipKeys(h, false)
	require.NoError(t, err)
	alice := NewSipHashLengthModifier("len", aSend, aRecv)
	bob := NewSipHashLengthModifier("len", bSend, bRecv)
	assert.Equal(t, "len", alice.Name())

	masked := map[string]bool{}
	for _, n := range []uint16{0, 1, 16, 1500, 65535, 16} {
		hdr := []byte{byte(n >> 8), byte(n)}
		out, err := alice.ModifyOutbound(PhaseFinal, hdr)
		require.NoError(t, err)
		masked[string(out)] = true

		in, err := bob.ModifyInbound(PhaseFinal, out)
		require.NoError(t, err)
		assert.Equal(t, hdr, in)
	}
	assert.Greater(t, len(masked), 1)

	hdr := []byte{0, 5}
	out, err := bob.ModifyOutbound(PhaseFinal, hdr)
	require.NoError(t, err)
	in, err := alice.ModifyInbound(PhaseFinal, out)
	require.NoError(t, err)
	assert.Equal(t, hdr, in)

	untouched, err := alice.ModifyOutbound(PhaseInitial, hdr)
	require.NoError(t, err)
	assert.Equal(t, hdr, untouched)
	untouched, err = alice.ModifyOutbound(PhaseFinal, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, untouched)
}

func TestNewAESModifierValidation(t *testing.T) {
	_, err := NewAESModifier("aes", make([]byte, 16), make([]byte, 16))
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
	_, err = NewAESModifier("aes", make([]byte, 32), make([]byte, 8))
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
}

func TestAESModifierHandshake(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	iv := bytes.Repeat([]byte{0x22}, 16)
	alice, err := NewAESModifier("aes", key, iv)
	require.NoError(t, err)
	bob, err := NewAESModifier("aes", key, iv)
	require.NoError(t, err)
	assert.Equal(t, "aes", alice.Name())

	msg0 := append(bytes.Repeat([]byte{0xe0}, 32), []byte("payload")...)
	out, err := alice.ModifyOutbound(PhaseInitial, msg0)
	require.NoError(t, err)
	assert.NotEqual(t, msg0[:32], out[:32])
	assert.Equal(t, msg0[32:], out[32:])
	in, err := bob.ModifyInbound(PhaseInitial, out)
	require.NoError(t, err)
	assert.Equal(t, msg0, in)

	// The second message chains from the first, so the same plaintext
	// encrypts differently than it would under the published IV.
	fresh, err := NewAESModifier("aes", key, iv)
	require.NoError(t, err)
	unchained, err := fresh.ModifyOutbound(PhaseInitial, msg0)
	require.NoError(t, err)

	out, err = bob.ModifyOutbound(PhaseExchange, msg0)
	require.NoError(t, err)
	assert.NotEqual(t, unchained[:32], out[:32])
	in, err = alice.ModifyInbound(PhaseExchange, out)
	require.NoError(t, err)
	assert.Equal(t, msg0, in)

	// Message 2 and transport frames pass through.
	out, err = alice.ModifyOutbound(PhaseExchange, msg0)
	require.NoError(t, err)
	assert.Equal(t, msg0, out)
	out, err = alice.ModifyOutbound(PhaseFinal, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, out)
}

func TestAESModifierShortMessage(t *testing.T) {
	m, err := NewAESModifier("aes", make([]byte, 32), make([]byte, 16))
	require.NoError(t, err)
	_, err = m.ModifyOutbound(PhaseInitial, make([]byte, 31))
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
}
