package core

// BlockState is the lifecycle state of a block.
type BlockState int32

const (
	StateConstructed BlockState = iota
	StateTopologyBound
	StateActive
	StateInactive
	StateDone
)

func (s BlockState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateTopologyBound:
		return "topology-bound"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
