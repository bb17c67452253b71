package restsource

// State is a step of the poll cycle.
type State int

const (
	StateIdle State = iota
	StateRequestSent
	StateResponseReceived
	StateConverted
	StateRouted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequestSent:
		return "REQUEST_SENT"
	case StateResponseReceived:
		return "RESPONSE_RECEIVED"
	case StateConverted:
		return "CONVERTED"
	case StateRouted:
		return "ROUTED"
	default:
		return "UNKNOWN"
	}
}
