// Package protocol maps Noise algorithm and pattern names to compact
// identifiers and parses and formats full protocol names such as
// "Noise_XXfallback+psk0_25519_AESGCM_SHA256".
package protocol

import "fmt"

// Category is the high byte of an identifier naming the kind of thing it refers to.
type Category uint16

// ID is an identifier for a registered name: the category in the high byte
// and the index within the category in the low byte. Zero means none.
type ID uint16

// Category returns the category the identifier belongs to.
func (id ID) Category() Category {
	return Category(uint16(id) & 0xFF00)
}

// String returns the registered name of id, or a hex form for unknown values.
func (id ID) String() string {
	if name := IDToName(CategoryAny, id); name != "" {
		return name
	}
	return fmt.Sprintf("ID(0x%04x)", uint16(id))
}

const (
	// CategoryAny matches every category in lookups.
	CategoryAny Category = 0

	CategoryCipher   Category = 'C' << 8
	CategoryDH       Category = 'D' << 8
	CategoryHash     Category = 'H' << 8
	CategoryModifier Category = 'M' << 8
	CategoryPrefix   Category = 'N' << 8
	CategoryPattern  Category = 'P' << 8
	CategorySign     Category = 'S' << 8
)

// String returns a readable category name.
func (c Category) String() string {
	switch c {
	case CategoryAny:
		return "any"
	case CategoryCipher:
		return "cipher"
	case CategoryDH:
		return "dh"
	case CategoryHash:
		return "hash"
	case CategoryModifier:
		return "modifier"
	case CategoryPrefix:
		return "prefix"
	case CategoryPattern:
		return "pattern"
	case CategorySign:
		return "sign"
	default:
		return fmt.Sprintf("category(0x%04x)", uint16(c))
	}
}

// Registered identifiers.
const (
	CipherChaChaPoly ID = ID(CategoryCipher) | 1
	CipherAESGCM     ID = ID(CategoryCipher) | 2

	HashBLAKE2s ID = ID(CategoryHash) | 1
	HashBLAKE2b ID = ID(CategoryHash) | 2
	HashSHA256  ID = ID(CategoryHash) | 3
	HashSHA512  ID = ID(CategoryHash) | 4

	DHCurve25519 ID = ID(CategoryDH) | 1
	DHCurve448   ID = ID(CategoryDH) | 2
	DHNewHope    ID = ID(CategoryDH) | 3
	DHMLKEM768   ID = ID(CategoryDH) | 4

	PatternN  ID = ID(CategoryPattern) | 1
	PatternX  ID = ID(CategoryPattern) | 2
	PatternK  ID = ID(CategoryPattern) | 3
	PatternNN ID = ID(CategoryPattern) | 4
	PatternNK ID = ID(CategoryPattern) | 5
	PatternNX ID = ID(CategoryPattern) | 6
	PatternXN ID = ID(CategoryPattern) | 7
	PatternXK ID = ID(CategoryPattern) | 8
	PatternXX ID = ID(CategoryPattern) | 9
	PatternKN ID = ID(CategoryPattern) | 10
	PatternKK ID = ID(CategoryPattern) | 11
	PatternKX ID = ID(CategoryPattern) | 12
	PatternIN ID = ID(CategoryPattern) | 13
	PatternIK ID = ID(CategoryPattern) | 14
	PatternIX ID = ID(CategoryPattern) | 15

	ModifierFallback ID = ID(CategoryModifier) | 1
	ModifierHFS      ID = ID(CategoryModifier) | 2
	ModifierPSK0     ID = ID(CategoryModifier) | 3
	ModifierPSK1     ID = ID(CategoryModifier) | 4
	ModifierPSK2     ID = ID(CategoryModifier) | 5
	ModifierPSK3     ID = ID(CategoryModifier) | 6

	PrefixStandard ID = ID(CategoryPrefix) | 1

	SignEd25519 ID = ID(CategorySign) | 1
)

type entry struct {
	id   ID
	name string
}

// registry is the static name table. Order matters only for wildcard
// lookups, which never see a name registered twice.
var registry = []entry{
	{CipherChaChaPoly, "ChaChaPoly"},
	{CipherAESGCM, "AESGCM"},

	{HashBLAKE2s, "BLAKE2s"},
	{HashBLAKE2b, "BLAKE2b"},
	{HashSHA256, "SHA256"},
	{HashSHA512, "SHA512"},

	{DHCurve25519, "25519"},
	{DHCurve448, "448"},
	{DHNewHope, "NewHope"},
	{DHMLKEM768, "MLKEM768"},

	{PatternN, "N"},
	{PatternX, "X"},
	{PatternK, "K"},
	{PatternNN, "NN"},
	{PatternNK, "NK"},
	{PatternNX, "NX"},
	{PatternXN, "XN"},
	{PatternXK, "XK"},
	{PatternXX, "XX"},
	{PatternKN, "KN"},
	{PatternKK, "KK"},
	{PatternKX, "KX"},
	{PatternIN, "IN"},
	{PatternIK, "IK"},
	{PatternIX, "IX"},

	{ModifierFallback, "fallback"},
	{ModifierHFS, "hfs"},
	{ModifierPSK0, "psk0"},
	{ModifierPSK1, "psk1"},
	{ModifierPSK2, "psk2"},
	{ModifierPSK3, "psk3"},

	{PrefixStandard, "Noise"},

	{SignEd25519, "Ed25519"},
}

var (
	byName = make(map[Category]map[string]ID)
	byID   = make(map[ID]string)
)

func init() {
	for _, e := range registry {
		cat := e.id.Category()
		if byName[cat] == nil {
			byName[cat] = make(map[string]ID)
		}
		byName[cat][e.name] = e.id
		byID[e.id] = e.name
	}
}

// NameToID returns the identifier registered for name within category, or
// within every category when category is CategoryAny. The match is exact and
// case-sensitive. It returns 0 when nothing matches.
func NameToID(category Category, name string) ID {
	if category != CategoryAny {
		return byName[category][name]
	}
	for _, e := range registry {
		if e.name == name {
			return e.id
		}
	}
	return 0
}

// IDToName returns the name registered for id, or "" if id is unknown or
// does not belong to category. CategoryAny accepts any category.
func IDToName(category Category, id ID) string {
	if id == 0 {
		return ""
	}
	if category != CategoryAny && id.Category() != category {
		return ""
	}
	return byID[id]
}

// Names returns the registered names of a category in registration order.
func Names(category Category) []string {
	var names []string
	for _, e := range registry {
		if category == CategoryAny || e.id.Category() == category {
			names = append(names, e.name)
		}
	}
	return names
}
