// Package obfs provides reversible transformations applied to Noise
// handshake messages and transport frame headers on the wire. They hide
// fixed message sizes and recognisable byte patterns; they add no security
// on top of the Noise handshake itself.
package obfs

// Phase identifies where on the wire a modifier is being applied.
type Phase int

const (
	// PhaseInitial is the first handshake message.
	PhaseInitial Phase = iota
	// PhaseExchange is any later handshake message.
	PhaseExchange
	// PhaseFinal is the transport phase after the handshake has split.
	PhaseFinal
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseExchange:
		return "exchange"
	case PhaseFinal:
		return "final"
	default:
		return "unknown"
	}
}

// PhaseForMessage maps a handshake message index to its phase.
func PhaseForMessage(index int) Phase {
	if index == 0 {
		return PhaseInitial
	}
	return PhaseExchange
}

// Modifier transforms outbound bytes and undoes the transformation on the
// inbound side. ModifyInbound(p, ModifyOutbound(p, x)) must return x when
// both peers are configured alike.
type Modifier interface {
	// ModifyOutbound transforms data about to be sent.
	ModifyOutbound(phase Phase, data []byte) ([]byte, error)

	// ModifyInbound reverses ModifyOutbound on received data.
	ModifyInbound(phase Phase, data []byte) ([]byte, error)

	// Name returns the modifier name for logging
	Name() string
}
