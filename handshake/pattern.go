package handshake

import (
	"strings"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
)

// Token is a single handshake action.
type Token uint8

const (
	TokenE Token = iota + 1
	TokenS
	TokenEE
	TokenES
	TokenSE
	TokenSS
	TokenPSK
	// TokenE1 sends the hybrid ephemeral public key.
	TokenE1
	// TokenEKEM1 encapsulates against the peer's hybrid ephemeral key.
	TokenEKEM1
)

// String returns the token as written in pattern notation.
func (t Token) String() string {
	switch t {
	case TokenE:
		return "e"
	case TokenS:
		return "s"
	case TokenEE:
		return "ee"
	case TokenES:
		return "es"
	case TokenSE:
		return "se"
	case TokenSS:
		return "ss"
	case TokenPSK:
		return "psk"
	case TokenE1:
		return "e1"
	case TokenEKEM1:
		return "ekem1"
	default:
		return "unknown"
	}
}

// Direction is the sender of a message. Directions name the left (Alice)
// and right (Bob) parties of the pattern, which stay fixed when fallback
// moves the first message to Bob.
type Direction uint8

const (
	// AliceToBob is written "->".
	AliceToBob Direction = iota + 1
	// BobToAlice is written "<-".
	BobToAlice
)

func (d Direction) String() string {
	switch d {
	case AliceToBob:
		return "->"
	case BobToAlice:
		return "<-"
	default:
		return "??"
	}
}

// Message is one handshake message of a pattern.
type Message struct {
	Direction Direction
	Tokens    []Token
}

// Pattern is a handshake pattern after its modifiers have been applied.
type Pattern struct {
	ID        protocol.ID
	Modifiers []protocol.ID
	// PreMessages holds the tokens known out of band, Alice's at index 0
	// and Bob's at index 1.
	PreMessages [2][]Token
	Messages    []Message
}

// String renders the pattern in the notation of the Noise framework, one
// line per pre-message or message with "..." after the pre-messages.
func (p Pattern) String() string {
	var b strings.Builder
	b.WriteString(p.Name())
	b.WriteString(":\n")
	pre := false
	for i, tokens := range p.PreMessages {
		if len(tokens) == 0 {
			continue
		}
		dir := AliceToBob
		if i == 1 {
			dir = BobToAlice
		}
		writeLine(&b, dir, tokens)
		pre = true
	}
	if pre {
		b.WriteString("  ...\n")
	}
	for _, m := range p.Messages {
		writeLine(&b, m.Direction, m.Tokens)
	}
	return b.String()
}

func writeLine(b *strings.Builder, dir Direction, tokens []Token) {
	b.WriteString("  ")
	b.WriteString(dir.String())
	for i, t := range tokens {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString("\n")
}

// Name returns the pattern and its modifiers, e.g. "XXfallback+psk0".
func (p Pattern) Name() string {
	name, err := protocol.FormatNameList(append([]protocol.ID{p.ID}, p.Modifiers...),
		protocol.CategoryPattern, protocol.CategoryModifier)
	if err != nil {
		return p.ID.String()
	}
	return name
}

// OneWay reports whether every message travels from Alice to Bob.
func (p Pattern) OneWay() bool {
	for _, m := range p.Messages {
		if m.Direction != AliceToBob {
			return false
		}
	}
	return true
}

func (p Pattern) clone() Pattern {
	out := Pattern{ID: p.ID, Modifiers: append([]protocol.ID(nil), p.Modifiers...)}
	for i := range p.PreMessages {
		out.PreMessages[i] = append([]Token(nil), p.PreMessages[i]...)
	}
	out.Messages = make([]Message, len(p.Messages))
	for i, m := range p.Messages {
		out.Messages[i] = Message{Direction: m.Direction, Tokens: append([]Token(nil), m.Tokens...)}
	}
	return out
}

func (p Pattern) hasToken(t Token) bool {
	for _, m := range p.Messages {
		for _, tok := range m.Tokens {
			if tok == t {
				return true
			}
		}
	}
	return false
}

func alice(tokens ...Token) Message { return Message{Direction: AliceToBob, Tokens: tokens} }
func bob(tokens ...Token) Message   { return Message{Direction: BobToAlice, Tokens: tokens} }

// basePatterns is the canonical pattern table.
var basePatterns = map[protocol.ID]Pattern{
	protocol.PatternN: {
		PreMessages: [2][]Token{nil, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES)},
	},
	protocol.PatternK: {
		PreMessages: [2][]Token{{TokenS}, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES, TokenSS)},
	},
	protocol.PatternX: {
		PreMessages: [2][]Token{nil, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES, TokenS, TokenSS)},
	},
	protocol.PatternNN: {
		Messages: []Message{alice(TokenE), bob(TokenE, TokenEE)},
	},
	protocol.PatternNK: {
		PreMessages: [2][]Token{nil, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES), bob(TokenE, TokenEE)},
	},
	protocol.PatternNX: {
		Messages: []Message{alice(TokenE), bob(TokenE, TokenEE, TokenS, TokenES)},
	},
	protocol.PatternXN: {
		Messages: []Message{alice(TokenE), bob(TokenE, TokenEE), alice(TokenS, TokenSE)},
	},
	protocol.PatternXK: {
		PreMessages: [2][]Token{nil, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES), bob(TokenE, TokenEE), alice(TokenS, TokenSE)},
	},
	protocol.PatternXX: {
		Messages: []Message{alice(TokenE), bob(TokenE, TokenEE, TokenS, TokenES), alice(TokenS, TokenSE)},
	},
	protocol.PatternKN: {
		PreMessages: [2][]Token{{TokenS}, nil},
		Messages:    []Message{alice(TokenE), bob(TokenE, TokenEE, TokenSE)},
	},
	protocol.PatternKK: {
		PreMessages: [2][]Token{{TokenS}, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES, TokenSS), bob(TokenE, TokenEE, TokenSE)},
	},
	protocol.PatternKX: {
		PreMessages: [2][]Token{{TokenS}, nil},
		Messages:    []Message{alice(TokenE), bob(TokenE, TokenEE, TokenSE, TokenS, TokenES)},
	},
	protocol.PatternIN: {
		Messages: []Message{alice(TokenE, TokenS), bob(TokenE, TokenEE, TokenSE)},
	},
	protocol.PatternIK: {
		PreMessages: [2][]Token{nil, {TokenS}},
		Messages:    []Message{alice(TokenE, TokenES, TokenS, TokenSS), bob(TokenE, TokenEE, TokenSE)},
	},
	protocol.PatternIX: {
		Messages: []Message{alice(TokenE, TokenS), bob(TokenE, TokenEE, TokenSE, TokenS, TokenES)},
	},
}

// LookupPattern returns the pattern named by id with its modifiers applied
// left to right.
func LookupPattern(id protocol.ProtocolID) (Pattern, error) {
	base, ok := basePatterns[id.Pattern]
	if !ok {
		return Pattern{}, oops.
			Code("UNKNOWN_ID").
			In("handshake").
			With("pattern", id.Pattern.String()).
			Wrapf(noiseerr.ErrUnknownID, "no handshake pattern for %s", id.Pattern)
	}
	p := base.clone()
	p.ID = id.Pattern
	for _, mod := range id.ModifierList() {
		if err := applyModifier(&p, mod); err != nil {
			return Pattern{}, err
		}
	}
	return p, nil
}
