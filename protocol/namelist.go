package protocol

import (
	"strings"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/samber/oops"
)

// ParseNameList parses a '+'-separated list of names into identifiers.
// Each name is looked up in cat1 and, if that fails and cat2 is not zero, in
// cat2. At most max identifiers are accepted.
//
// When cat1 is CategoryPattern and cat2 is CategoryModifier the text uses the
// pattern form instead: a pattern name immediately followed by an optional
// '+'-separated modifier list, as in "XXfallback+psk0". The pattern is the
// longest registered pattern name that prefixes the text and no modifier may
// appear twice.
//
// On failure no identifiers are returned.
func ParseNameList(text string, max int, cat1, cat2 Category) ([]ID, error) {
	if max <= 0 {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("protocol").
			With("max", max).
			Wrapf(noiseerr.ErrInvalidLength, "identifier list capacity must be positive")
	}

	var ids []ID
	var err error
	if cat1 == CategoryPattern && cat2 == CategoryModifier {
		ids, err = parsePatternForm(text)
	} else {
		ids, err = parsePlainList(text, cat1, cat2)
	}
	if err != nil {
		return nil, err
	}

	if len(ids) > max {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("protocol").
			With("name", text).
			With("count", len(ids)).
			With("max", max).
			Wrapf(noiseerr.ErrInvalidLength, "name list has too many entries")
	}
	return ids, nil
}

func parsePlainList(text string, cat1, cat2 Category) ([]ID, error) {
	if text == "" {
		return nil, unknownName(text)
	}
	segments := strings.Split(text, "+")
	ids := make([]ID, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			return nil, unknownName(text)
		}
		id := NameToID(cat1, seg)
		if id == 0 && cat2 != CategoryAny {
			id = NameToID(cat2, seg)
		}
		if id == 0 {
			return nil, unknownName(text)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parsePatternForm(text string) ([]ID, error) {
	pattern, rest := longestPattern(text)
	if pattern == 0 {
		return nil, unknownName(text)
	}
	ids := []ID{pattern}
	if rest == "" {
		return ids, nil
	}

	mods, err := parsePlainList(rest, CategoryModifier, CategoryAny)
	if err != nil {
		return nil, unknownName(text)
	}
	seen := make(map[ID]bool, len(mods))
	for _, m := range mods {
		if seen[m] {
			return nil, oops.
				Code("UNKNOWN_NAME").
				In("protocol").
				With("name", text).
				With("modifier", m.String()).
				Wrapf(noiseerr.ErrUnknownName, "modifier repeated in %q", text)
		}
		seen[m] = true
	}
	return append(ids, mods...), nil
}

// longestPattern returns the longest registered pattern name that prefixes
// text, and the remainder of text after it.
func longestPattern(text string) (ID, string) {
	var best ID
	bestLen := 0
	for name, id := range byName[CategoryPattern] {
		if len(name) > bestLen && strings.HasPrefix(text, name) {
			best, bestLen = id, len(name)
		}
	}
	return best, text[bestLen:]
}

// FormatNameList formats identifiers as a '+'-separated name list, the
// inverse of ParseNameList. The text plus a terminator must fit in
// MaxProtocolName bytes.
func FormatNameList(ids []ID, cat1, cat2 Category) (string, error) {
	b, err := AppendNameList(nil, MaxProtocolName, ids, cat1, cat2)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AppendNameList appends the formatted name list to dst. limit is the size of
// the destination storage: the formatted text plus one terminator byte must
// fit in it. On failure dst is returned unchanged, never with a partial list.
func AppendNameList(dst []byte, limit int, ids []ID, cat1, cat2 Category) ([]byte, error) {
	if len(ids) == 0 || limit <= 0 {
		return dst, oops.
			Code("INVALID_PARAM").
			In("protocol").
			With("ids", len(ids)).
			With("limit", limit).
			Wrapf(noiseerr.ErrInvalidParam, "nothing to format")
	}

	patternForm := cat1 == CategoryPattern && cat2 == CategoryModifier
	var sb strings.Builder
	for i, id := range ids {
		var name string
		switch {
		case patternForm && i == 0:
			name = IDToName(CategoryPattern, id)
		case patternForm:
			name = IDToName(CategoryModifier, id)
		default:
			name = IDToName(cat1, id)
			if name == "" && cat2 != CategoryAny {
				name = IDToName(cat2, id)
			}
		}
		if name == "" {
			return dst, unknownID("name list", id)
		}
		if i > 0 && !(patternForm && i == 1) {
			sb.WriteByte('+')
		}
		sb.WriteString(name)
	}

	if sb.Len()+1 > limit {
		return dst, oops.
			Code("INVALID_LENGTH").
			In("protocol").
			With("needed", sb.Len()+1).
			With("limit", limit).
			Wrapf(noiseerr.ErrInvalidLength, "name list does not fit")
	}
	return append(dst, sb.String()...), nil
}

func unknownName(text string) error {
	return oops.
		Code("UNKNOWN_NAME").
		In("protocol").
		With("name", text).
		Wrapf(noiseerr.ErrUnknownName, "cannot parse %q", text)
}

func unknownID(field string, id ID) error {
	return oops.
		Code("UNKNOWN_ID").
		In("protocol").
		With("field", field).
		With("id", uint16(id)).
		Wrapf(noiseerr.ErrUnknownID, "identifier 0x%04x not valid for %s", uint16(id), field)
}
