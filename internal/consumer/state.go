package consumer

// State is the lifecycle position of a Consumer.
//
//	Uninitialized -> Ready -> Receiving -> Stopping -> Ready
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateReceiving
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateReceiving:
		return "receiving"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
