package domain

// Exchange is configured once at startup and shared by every channel of a service.
type Exchange struct {
	Name string
	Kind string
}

type ConnectionState int32

const (
	Unconnected ConnectionState = iota
	Connected
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unconnected"
	}
}
