package live

import "errors"

type State int

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateError
	StateTimeout
	StateRisk
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateInit:       "init",
	StateConnecting: "connecting",
	StateConnected:  "connected",
	StateError:      "error",
	StateTimeout:    "timeout",
	StateRisk:       "risk",
	StateClosing:    "closing",
	StateClosed:     "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the state belongs to a disconnect in progress or
// done. Nothing but Disconnect may leave or override it.
func (s State) Terminal() bool {
	return s == StateClosing || s == StateClosed
}

func (s State) active() bool {
	return s == StateConnecting || s == StateConnected
}

// States lists every state in order, for gauges and UIs.
func States() []State {
	out := make([]State, 0, len(stateNames))
	for s := range stateNames {
		out = append(out, State(s))
	}
	return out
}

var (
	ErrHandshakeTimeout = errors.New("live: handshake timed out")
	ErrHandshakeFailed  = errors.New("live: handshake failed")
	ErrNoLiveRoom       = errors.New("live: room number is zero")
	ErrRoomExists       = errors.New("live: room already registered")
	ErrRoomNotFound     = errors.New("live: room not registered")
)
