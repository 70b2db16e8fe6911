package push

// State is the state of a push connection.
type State int

const (
	// StateDisconnected has no resource and nothing latched.
	StateDisconnected State = iota
	// StatePushPending latched an async push to flush once connected.
	StatePushPending
	// StateResponsePending latched a response push to flush once
	// connected.
	StateResponsePending
	// StateConnected has a bound resource.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StatePushPending:
		return "push_pending"
	case StateResponsePending:
		return "response_pending"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Event is an input to the push state machine.
type Event int

const (
	EventPushAsync Event = iota
	EventPushResponse
	EventConnect
	EventDisconnect
	EventConnectionLost
)

func (e Event) String() string {
	switch e {
	case EventPushAsync:
		return "push_async"
	case EventPushResponse:
		return "push_response"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Action is the side effect a transition asks for.
type Action int

const (
	ActionNone Action = iota
	// ActionSend assembles and sends a response now.
	ActionSend
	// ActionFlushAsync sends the latched async push.
	ActionFlushAsync
	// ActionFlushResponse sends the latched response push.
	ActionFlushResponse
	// ActionClose drains and closes the bound resource.
	ActionClose
	// ActionDrop forgets the bound resource without closing it.
	ActionDrop
	// ActionInvalid marks an event that is not valid in the state.
	ActionInvalid
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSend:
		return "send"
	case ActionFlushAsync:
		return "flush_async"
	case ActionFlushResponse:
		return "flush_response"
	case ActionClose:
		return "close"
	case ActionDrop:
		return "drop"
	case ActionInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Transition returns the state after ev and the action to perform. It has
// no side effects.
//
// A response push latched while disconnected absorbs a later async push,
// never the reverse. Connection lost only leaves StateConnected; in a
// pending state it keeps the latched push.
func Transition(s State, ev Event) (State, Action) {
	switch ev {
	case EventPushAsync:
		switch s {
		case StateConnected:
			return s, ActionSend
		case StateResponsePending:
			return s, ActionNone
		default:
			return StatePushPending, ActionNone
		}

	case EventPushResponse:
		if s == StateConnected {
			return s, ActionSend
		}
		return StateResponsePending, ActionNone

	case EventConnect:
		switch s {
		case StatePushPending:
			return StateConnected, ActionFlushAsync
		case StateResponsePending:
			return StateConnected, ActionFlushResponse
		default:
			return StateConnected, ActionNone
		}

	case EventDisconnect:
		if s != StateConnected {
			return s, ActionInvalid
		}
		return StateDisconnected, ActionClose

	case EventConnectionLost:
		if s == StateConnected {
			return StateDisconnected, ActionDrop
		}
		return s, ActionDrop
	}
	return s, ActionInvalid
}
