package handshake

import (
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/samber/oops"
)

func applyModifier(p *Pattern, mod protocol.ID) error {
	var err error
	switch mod {
	case protocol.ModifierFallback:
		err = applyFallback(p)
	case protocol.ModifierHFS:
		err = applyHFS(p)
	case protocol.ModifierPSK0:
		err = applyPSK(p, 0)
	case protocol.ModifierPSK1:
		err = applyPSK(p, 1)
	case protocol.ModifierPSK2:
		err = applyPSK(p, 2)
	case protocol.ModifierPSK3:
		err = applyPSK(p, 3)
	default:
		return oops.
			Code("UNKNOWN_ID").
			In("handshake").
			With("modifier", mod.String()).
			Wrapf(noiseerr.ErrUnknownID, "unsupported modifier %s", mod)
	}
	if err != nil {
		return err
	}
	p.Modifiers = append(p.Modifiers, mod)
	return nil
}

func notApplicable(p *Pattern, mod protocol.ID, reason string) error {
	return oops.
		Code("NOT_APPLICABLE").
		In("handshake").
		With("pattern", p.Name()).
		With("modifier", mod.String()).
		Wrapf(noiseerr.ErrNotApplicable, "%s cannot be applied to %s: %s", mod, p.Name(), reason)
}

// applyFallback turns Alice's first message into a pre-message, so the
// handshake starts with Bob's reply.
func applyFallback(p *Pattern) error {
	if len(p.Messages) < 2 || p.OneWay() {
		return notApplicable(p, protocol.ModifierFallback, "pattern is not interactive")
	}
	first := p.Messages[0]
	if first.Direction != AliceToBob {
		return notApplicable(p, protocol.ModifierFallback, "first message is not sent by Alice")
	}
	for _, t := range first.Tokens {
		if t != TokenE && t != TokenS && t != TokenE1 {
			return notApplicable(p, protocol.ModifierFallback, "first message performs "+t.String())
		}
	}
	p.PreMessages[0] = append(p.PreMessages[0], first.Tokens...)
	p.Messages = p.Messages[1:]
	return nil
}

// applyHFS inserts e1 after the first e and ekem1 after the first ee.
func applyHFS(p *Pattern) error {
	placed := false
	for i := range p.PreMessages {
		if insertAfter(&p.PreMessages[i], TokenE, TokenE1) {
			placed = true
			break
		}
	}
	for i := 0; !placed && i < len(p.Messages); i++ {
		placed = insertAfter(&p.Messages[i].Tokens, TokenE, TokenE1)
	}
	if !placed {
		return notApplicable(p, protocol.ModifierHFS, "pattern has no ephemeral key")
	}

	for i := range p.Messages {
		if insertAfter(&p.Messages[i].Tokens, TokenEE, TokenEKEM1) {
			return nil
		}
	}
	return notApplicable(p, protocol.ModifierHFS, "pattern has no ee exchange")
}

// applyPSK places a psk token at the start of the first message for psk0,
// or at the end of message n counting from one.
func applyPSK(p *Pattern, n int) error {
	mod := protocol.ModifierPSK0 + protocol.ID(n)
	if n == 0 {
		if len(p.Messages) == 0 {
			return notApplicable(p, mod, "pattern has no messages")
		}
		m := &p.Messages[0]
		m.Tokens = append([]Token{TokenPSK}, m.Tokens...)
		return nil
	}
	if n > len(p.Messages) {
		return notApplicable(p, mod, "pattern has too few messages")
	}
	m := &p.Messages[n-1]
	m.Tokens = append(m.Tokens, TokenPSK)
	return nil
}

func insertAfter(tokens *[]Token, after, insert Token) bool {
	for i, t := range *tokens {
		if t != after {
			continue
		}
		out := make([]Token, 0, len(*tokens)+1)
		out = append(out, (*tokens)[:i+1]...)
		out = append(out, insert)
		out = append(out, (*tokens)[i+1:]...)
		*tokens = out
		return true
	}
	return false
}
