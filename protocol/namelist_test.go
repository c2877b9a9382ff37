package protocol

import (
	"strings"
	"testing"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxIDs = 16

func TestNameListRoundTrip(t *testing.T) {
	tests := []struct {
		text       string
		cat1, cat2 Category
		want       []ID
	}{
		{"25519", CategoryDH, CategoryDH, []ID{DHCurve25519}},
		{"25519+448", CategoryDH, CategoryAny, []ID{DHCurve25519, DHCurve448}},
		{"25519+BLAKE2s", CategoryDH, CategoryHash, []ID{DHCurve25519, HashBLAKE2s}},
		{"25519+BLAKE2s+SHA512", CategoryDH, CategoryHash, []ID{DHCurve25519, HashBLAKE2s, HashSHA512}},
		{"KX", CategoryPattern, CategoryModifier, []ID{PatternKX}},
		{"IKhfs", CategoryPattern, CategoryModifier, []ID{PatternIK, ModifierHFS}},
		{"XXfallback+psk1", CategoryPattern, CategoryModifier, []ID{PatternXX, ModifierFallback, ModifierPSK1}},
		{"XXfallback+hfs+psk0+psk1", CategoryPattern, CategoryModifier,
			[]ID{PatternXX, ModifierFallback, ModifierHFS, ModifierPSK0, ModifierPSK1}},
		{"Npsk0", CategoryPattern, CategoryModifier, []ID{PatternN, ModifierPSK0}},
		{"KX+N", CategoryPattern, CategoryAny, []ID{PatternKX, PatternN}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ids, err := ParseNameList(tt.text, maxIDs, tt.cat1, tt.cat2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)

			text, err := FormatNameList(ids, tt.cat1, tt.cat2)
			require.NoError(t, err)
			assert.Equal(t, tt.text, text)

			_, err = ParseNameList(tt.text, 0, tt.cat1, tt.cat2)
			assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
			_, err = ParseNameList("", maxIDs, tt.cat1, tt.cat2)
			assert.ErrorIs(t, err, noiseerr.ErrUnknownName)
			_, err = ParseNameList(tt.text, maxIDs, CategorySign, CategoryAny)
			assert.ErrorIs(t, err, noiseerr.ErrUnknownName)

			_, err = FormatNameList(nil, tt.cat1, tt.cat2)
			assert.ErrorIs(t, err, noiseerr.ErrInvalidParam)
			_, err = FormatNameList(ids, CategorySign, CategoryAny)
			assert.ErrorIs(t, err, noiseerr.ErrUnknownID)

			dst := []byte("keep")
			out, err := AppendNameList(dst, 1, ids, tt.cat1, tt.cat2)
			assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
			assert.Equal(t, "keep", string(out))
			out, err = AppendNameList(dst, len(tt.text), ids, tt.cat1, tt.cat2)
			assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
			assert.Equal(t, "keep", string(out))
			out, err = AppendNameList(dst, len(tt.text)+1, ids, tt.cat1, tt.cat2)
			require.NoError(t, err)
			assert.Equal(t, "keep"+tt.text, string(out))
		})
	}
}

func TestNameListErrors(t *testing.T) {
	tests := []struct {
		text       string
		cat1, cat2 Category
	}{
		{"", CategoryDH, CategoryAny},
		{"+25519", CategoryDH, CategoryAny},
		{"25519+", CategoryDH, CategoryAny},
		{"25519++448", CategoryDH, CategoryAny},
		{"Curve25519+448", CategoryDH, CategoryAny},
		{"25519+SHA256", CategoryDH, CategoryAny},
		{"SHA256+25519", CategoryDH, CategoryCipher},
		{"25519+448+", CategoryDH, CategoryAny},
		{"", CategoryPattern, CategoryModifier},
		{"XX+", CategoryPattern, CategoryModifier},
		{"XXxfs", CategoryPattern, CategoryModifier},
		{"XX+hfs", CategoryPattern, CategoryModifier},
		{"XXfallback+hfs+", CategoryPattern, CategoryModifier},
		{"XXpsk0+psk0", CategoryPattern, CategoryModifier},
		{"xx", CategoryPattern, CategoryModifier},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ids, err := ParseNameList(tt.text, maxIDs, tt.cat1, tt.cat2)
			assert.ErrorIs(t, err, noiseerr.ErrUnknownName)
			assert.Nil(t, ids)
		})
	}
}

func TestNameListCapacity(t *testing.T) {
	ids, err := ParseNameList("25519+448", 1, CategoryDH, CategoryAny)
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
	assert.Nil(t, ids)

	ids, err = ParseNameList("25519+448", 2, CategoryDH, CategoryAny)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestFormatNameListTooLong(t *testing.T) {
	ids := make([]ID, 30)
	for i := range ids {
		ids[i] = HashBLAKE2s
	}
	text, err := FormatNameList(ids, CategoryHash, CategoryAny)
	assert.ErrorIs(t, err, noiseerr.ErrInvalidLength)
	assert.Empty(t, text)

	text, err = FormatNameList(ids[:10], CategoryHash, CategoryAny)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("BLAKE2s+", 9)+"BLAKE2s", text)
}

func TestFormatPatternFormRejectsMisplacedIDs(t *testing.T) {
	_, err := FormatNameList([]ID{ModifierHFS, PatternXX}, CategoryPattern, CategoryModifier)
	assert.ErrorIs(t, err, noiseerr.ErrUnknownID)

	_, err = FormatNameList([]ID{PatternXX, PatternNN}, CategoryPattern, CategoryModifier)
	assert.ErrorIs(t, err, noiseerr.ErrUnknownID)
}
