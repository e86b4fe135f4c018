package adiv5

import "fmt"

// Fault is the sticky fault state latched on a DP after a transaction.
type Fault int

const (
	FaultNone Fault = iota
	FaultOK
	FaultWait
	FaultFault
	FaultNoResponse
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultOK:
		return "OK"
	case FaultWait:
		return "WAIT"
	case FaultFault:
		return "FAULT"
	case FaultNoResponse:
		return "NO_RESPONSE"
	default:
		return fmt.Sprintf("Fault(%d)", int(f))
	}
}

// ProtocolError is raised when the DAP_Transfer ack is neither a known fault
// value nor OK — spec.md §4.3 calls this a fatal exception, since it implies
// the transport itself has desynced.
type ProtocolError struct {
	Ack byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("adiv5: protocol error, unrecognised ack 0x%x", e.Ack)
}
