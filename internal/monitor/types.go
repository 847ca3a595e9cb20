// internal/monitor/types.go
package monitor

import (
	"time"

	"github.com/stverhae/sonomux/internal/sonicator"
)

// SystemStatus is the decoded system status block.
type SystemStatus struct {
	Enabled   bool
	EStop     bool
	Watchdog  bool
	CommFault bool

	ActiveCount   uint16
	ActiveMask    uint16
	WatchdogOK    bool
	CommErrors    uint16
	LastException uint16
	UptimeSecs    uint32
	Firmware      uint16
}

// UnitStatus is the decoded status sub-block of one unit.
type UnitStatus struct {
	State           sonicator.State
	Running         bool
	Overload        bool
	FreqLocked      bool
	CommFault       bool
	Fault           bool
	PowerRaw        uint16
	FrequencyRaw    uint16
	ActualAmplitude uint16
	StartCount      uint16
	RuntimeSecs     uint32
	LastFault       sonicator.FaultCode
	FaultCount      uint16
}

// Snapshot is what one poll cycle delivers: the system block plus every
// unit's status, all read in the same cycle.
type Snapshot struct {
	System SystemStatus
	Units  []UnitStatus
}

// Result is a snapshot stamped by one poll cycle.
type Result struct {
	At       time.Time
	Snapshot Snapshot
	Err      error // non-nil means the poll cycle failed
}
