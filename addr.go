// Package noise implements the Noise Protocol Framework: protocol name
// parsing, the handshake state machine with the psk, fallback and hfs
// modifiers, and net.Conn, net.Listener and net.Addr wrappers that carry
// Noise sessions over any stream transport.
package noise

import (
	"fmt"
	"net"

	"github.com/go-i2p/go-noise/protocol"
)

// NoiseAddr is the net.Addr of one end of a Noise session: the transport
// address plus the protocol name and the role that end plays.
type NoiseAddr struct {
	underlying   net.Addr
	protocolName string
	role         string
}

func NewNoiseAddr(underlying net.Addr, protocolName, role string) *NoiseAddr {
	return &NoiseAddr{underlying: underlying, protocolName: protocolName, role: role}
}

// Network is "noise+" followed by the transport network, or just "noise"
// when there is no transport address.
func (na *NoiseAddr) Network() string {
	network := "noise"
	if na.underlying != nil {
		network += "+" + na.underlying.Network()
	}
	return network
}

// String returns "noise://<protocol>/<role>[/<underlying>]".
func (na *NoiseAddr) String() string {
	if na.underlying == nil {
		return fmt.Sprintf("noise://%s/%s", na.protocolName, na.role)
	}
	return fmt.Sprintf("noise://%s/%s/%s", na.protocolName, na.role, na.underlying.String())
}

// Underlying returns the transport address.
func (na *NoiseAddr) Underlying() net.Addr {
	return na.underlying
}

func (na *NoiseAddr) ProtocolName() string {
	return na.protocolName
}

// Pattern returns the pattern and modifier part of the protocol name,
// e.g. "XXpsk3", or "" if the name does not parse.
func (na *NoiseAddr) Pattern() string {
	id, err := protocol.ParseProtocolName(na.protocolName)
	if err != nil {
		return ""
	}
	name, err := protocol.FormatNameList(append([]protocol.ID{id.Pattern}, id.ModifierList()...),
		protocol.CategoryPattern, protocol.CategoryModifier)
	if err != nil {
		return ""
	}
	return name
}

// Role is "initiator" or "responder".
func (na *NoiseAddr) Role() string {
	return na.role
}
