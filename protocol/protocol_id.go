package protocol

import (
	"strings"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/samber/oops"
)

const (
	// MaxModifierIDs is the number of modifiers a ProtocolID can carry.
	MaxModifierIDs = 4

	// MaxProtocolName bounds the length of a formatted protocol name,
	// terminator included.
	MaxProtocolName = 128
)

// ProtocolID is the parsed form of a protocol name. The zero value is empty.
// ProtocolID values are comparable with ==.
type ProtocolID struct {
	Prefix    ID
	Pattern   ID
	Modifiers [MaxModifierIDs]ID
	DH        ID
	// Hybrid is the optional second key exchange written as "25519+MLKEM768".
	Hybrid ID
	Cipher ID
	Hash   ID
	// Reserved must be zero.
	Reserved [4]ID
}

// ParseProtocolName parses a name of the form
// "<prefix>_<pattern><modifiers>_<dh>[+<hybrid>]_<cipher>_<hash>".
// On failure the returned ProtocolID is zero.
func ParseProtocolName(name string) (ProtocolID, error) {
	var id ProtocolID

	parts := strings.Split(name, "_")
	if len(parts) != 5 {
		return ProtocolID{}, unknownName(name)
	}

	id.Prefix = NameToID(CategoryPrefix, parts[0])
	if id.Prefix == 0 {
		return ProtocolID{}, unknownName(name)
	}

	pattern, err := ParseNameList(parts[1], 1+MaxModifierIDs, CategoryPattern, CategoryModifier)
	if err != nil {
		return ProtocolID{}, unknownName(name)
	}
	id.Pattern = pattern[0]
	copy(id.Modifiers[:], pattern[1:])

	dh, err := ParseNameList(parts[2], 2, CategoryDH, CategoryAny)
	if err != nil {
		return ProtocolID{}, unknownName(name)
	}
	id.DH = dh[0]
	if len(dh) == 2 {
		id.Hybrid = dh[1]
	}

	id.Cipher = NameToID(CategoryCipher, parts[3])
	id.Hash = NameToID(CategoryHash, parts[4])
	if id.Cipher == 0 || id.Hash == 0 {
		return ProtocolID{}, unknownName(name)
	}
	return id, nil
}

// FormatProtocolName is the inverse of ParseProtocolName.
func FormatProtocolName(id *ProtocolID) (string, error) {
	if id == nil {
		return "", oops.
			Code("INVALID_PARAM").
			In("protocol").
			Wrapf(noiseerr.ErrInvalidParam, "protocol id is nil")
	}
	if err := id.validate(); err != nil {
		return "", err
	}

	buf := make([]byte, 0, MaxProtocolName)
	buf = append(buf, IDToName(CategoryPrefix, id.Prefix)...)
	buf = append(buf, '_')

	// The limits below are generous; the total is checked once at the end.
	buf, err := AppendNameList(buf, MaxProtocolName, append([]ID{id.Pattern}, id.ModifierList()...),
		CategoryPattern, CategoryModifier)
	if err != nil {
		return "", err
	}
	buf = append(buf, '_')

	dh := []ID{id.DH}
	if id.Hybrid != 0 {
		dh = append(dh, id.Hybrid)
	}
	buf, err = AppendNameList(buf, MaxProtocolName, dh, CategoryDH, CategoryAny)
	if err != nil {
		return "", err
	}
	buf = append(buf, '_')
	buf = append(buf, IDToName(CategoryCipher, id.Cipher)...)
	buf = append(buf, '_')
	buf = append(buf, IDToName(CategoryHash, id.Hash)...)

	if len(buf)+1 > MaxProtocolName {
		return "", oops.
			Code("INVALID_LENGTH").
			In("protocol").
			With("length", len(buf)).
			Wrapf(noiseerr.ErrInvalidLength, "protocol name exceeds %d bytes", MaxProtocolName-1)
	}
	return string(buf), nil
}

// EncodeProtocolName writes the formatted name of id followed by a zero
// terminator into buf and returns the length of the name. An empty buf is
// rejected without being touched; on any other failure buf[0] is set to 0 and
// nothing else is written.
func EncodeProtocolName(buf []byte, id *ProtocolID) (int, error) {
	if buf == nil {
		return 0, oops.
			Code("INVALID_PARAM").
			In("protocol").
			Wrapf(noiseerr.ErrInvalidParam, "destination buffer is nil")
	}
	if len(buf) == 0 {
		return 0, oops.
			Code("INVALID_LENGTH").
			In("protocol").
			Wrapf(noiseerr.ErrInvalidLength, "destination buffer is empty")
	}

	name, err := FormatProtocolName(id)
	if err != nil {
		buf[0] = 0
		return 0, err
	}
	if len(name)+1 > len(buf) {
		buf[0] = 0
		return 0, oops.
			Code("INVALID_LENGTH").
			In("protocol").
			With("needed", len(name)+1).
			With("available", len(buf)).
			Wrapf(noiseerr.ErrInvalidLength, "protocol name does not fit")
	}
	copy(buf, name)
	buf[len(name)] = 0
	return len(name), nil
}

func (id *ProtocolID) validate() error {
	for _, r := range id.Reserved {
		if r != 0 {
			return unknownID("reserved", r)
		}
	}
	checks := []struct {
		field    string
		value    ID
		category Category
		optional bool
	}{
		{"prefix", id.Prefix, CategoryPrefix, false},
		{"pattern", id.Pattern, CategoryPattern, false},
		{"dh", id.DH, CategoryDH, false},
		{"hybrid", id.Hybrid, CategoryDH, true},
		{"cipher", id.Cipher, CategoryCipher, false},
		{"hash", id.Hash, CategoryHash, false},
	}
	for _, c := range checks {
		if c.optional && c.value == 0 {
			continue
		}
		if IDToName(c.category, c.value) == "" {
			return unknownID(c.field, c.value)
		}
	}

	end := false
	for _, m := range id.Modifiers {
		if m == 0 {
			end = true
			continue
		}
		// Modifiers are packed at the front.
		if end || IDToName(CategoryModifier, m) == "" {
			return unknownID("modifier", m)
		}
	}
	return nil
}

// IsComplete reports whether every mandatory field holds an identifier of the
// right category and no reserved field is set.
func (id ProtocolID) IsComplete() bool {
	return id.validate() == nil
}

// ModifierList returns the modifiers in name order.
func (id ProtocolID) ModifierList() []ID {
	var mods []ID
	for _, m := range id.Modifiers {
		if m == 0 {
			break
		}
		mods = append(mods, m)
	}
	return mods
}

// HasModifier reports whether m is among the modifiers.
func (id ProtocolID) HasModifier(m ID) bool {
	for _, have := range id.ModifierList() {
		if have == m {
			return true
		}
	}
	return false
}

// String returns the protocol name, or "<invalid>" if id cannot be formatted.
func (id ProtocolID) String() string {
	name, err := FormatProtocolName(&id)
	if err != nil {
		return "<invalid>"
	}
	return name
}

// MarshalText implements encoding.TextMarshaler.
func (id ProtocolID) MarshalText() ([]byte, error) {
	name, err := FormatProtocolName(&id)
	if err != nil {
		return nil, err
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ProtocolID) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocolName(string(text))
	*id = parsed
	return err
}
