// internal/sonicator/state.go
package sonicator

// State is a unit's lifecycle state. The ordinal is exposed verbatim in
// the unit's state-code status register.
type State uint16

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateOverload
	StateFault
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateOverload:
		return "OVERLOAD"
	case StateFault:
		return "FAULT"
	default:
		return "?"
	}
}

// FaultCode identifies the condition that last drove a unit into
// OVERLOAD or FAULT. Exposed in the last-fault status register.
type FaultCode uint16

const (
	FaultNone FaultCode = iota
	FaultOverload
	FaultFreqUnlock
	FaultCommTimeout
	FaultHardware
	FaultWatchdog
	FaultEmergencyStop
)

func (f FaultCode) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultOverload:
		return "overload"
	case FaultFreqUnlock:
		return "frequency unlock"
	case FaultCommTimeout:
		return "comm timeout"
	case FaultHardware:
		return "hardware fault"
	case FaultWatchdog:
		return "watchdog"
	case FaultEmergencyStop:
		return "emergency stop"
	default:
		return "?"
	}
}
