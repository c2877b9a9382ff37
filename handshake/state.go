package handshake

// Role is the side of the pattern a HandshakeState plays.
type Role int

const (
	// RoleInitiator is Alice, the left-hand party of a pattern.
	RoleInitiator Role = iota + 1
	// RoleResponder is Bob, the right-hand party.
	RoleResponder
)

// String returns the string representation of the role
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a HandshakeState.
type State int

const (
	// StateInitial is a constructed state that has not processed a message.
	StateInitial State = iota
	// StateHandshaking is a state with messages still to exchange.
	StateHandshaking
	// StateSplit is a finished handshake waiting for Split.
	StateSplit
	// StateTerminal is a state that has been split.
	StateTerminal
	// StateFailed is a state that can no longer be used.
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateHandshaking:
		return "handshaking"
	case StateSplit:
		return "split"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action tells the caller what to do next with a HandshakeState.
type Action int

const (
	ActionNone Action = iota
	ActionWriteMessage
	ActionReadMessage
	ActionSplit
	ActionComplete
	ActionFailed
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionWriteMessage:
		return "write_message"
	case ActionReadMessage:
		return "read_message"
	case ActionSplit:
		return "split"
	case ActionComplete:
		return "complete"
	case ActionFailed:
		return "failed"
	default:
		return "unknown"
	}
}
