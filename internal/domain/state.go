package domain

// ConnState is the lifecycle state of one exchange feed connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateDegraded
)

var connStateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateSubscribing:  "subscribing",
	StateStreaming:    "streaming",
	StateDegraded:     "degraded",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(connStateNames) {
		return "unknown"
	}
	return connStateNames[s]
}

// MarshalText renders the state by name in JSON payloads.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Live reports whether the connection is delivering or able to deliver
// data. Degraded counts: the socket is up, only quiet.
func (s ConnState) Live() bool {
	return s == StateStreaming || s == StateDegraded
}
