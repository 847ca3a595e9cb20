// internal/regmap/constants.go
package regmap

// Register address map. These values define the wire contract with the
// supervising controller and MUST NOT be configurable.

// ---- SYSTEM STATUS (read-only) ----

// SystemBase is the first system status register.
const SystemBase uint16 = 0x0000

// SystemSize is the number of system status registers.
const SystemSize uint16 = 0x10

const (
	// RegSystemFlags holds the system flag bits (see SysFlag*).
	RegSystemFlags uint16 = 0x0000

	// RegActiveCount holds the number of units currently RUNNING.
	RegActiveCount uint16 = 0x0001

	// RegActiveMask holds one bit per RUNNING unit (bit i = unit i).
	RegActiveMask uint16 = 0x0002

	// RegWatchdogOK reads 1 while the control loop meets its cadence.
	RegWatchdogOK uint16 = 0x0003

	// RegCommErrors counts rejected frames and comm timeouts.
	RegCommErrors uint16 = 0x0004

	// RegLastException holds the last Modbus exception code sent.
	RegLastException uint16 = 0x0005

	// RegUptimeLo / RegUptimeHi hold uptime seconds, low word first.
	RegUptimeLo uint16 = 0x0006
	RegUptimeHi uint16 = 0x0007

	// RegFirmwareVersion holds the firmware version, BCD major.minor.
	RegFirmwareVersion uint16 = 0x0008
)

// ---- GLOBAL CONTROL (read/write) ----

// GlobalBase is the first global control register.
const GlobalBase uint16 = 0x0010

// GlobalSize is the number of global control registers.
const GlobalSize uint16 = 0x10

const (
	// RegGlobalEnable gates every unit start (0 = no unit leaves IDLE).
	RegGlobalEnable uint16 = 0x0010

	// RegEmergencyStop forces all units to a safe state on the next tick.
	RegEmergencyStop uint16 = 0x0011

	// RegSystemReset clears latched faults; write 1, auto-clears.
	RegSystemReset uint16 = 0x0012
)

// ---- PER-UNIT BLOCKS ----

// UnitBase is the first register of unit 0's block.
const UnitBase uint16 = 0x0100

// UnitStride is the address distance between consecutive unit blocks.
const UnitStride uint16 = 0x20

// UnitControlSize splits each block: offsets below it are read/write
// control, the rest read-only status.
const UnitControlSize uint16 = 0x10

// UnitBlockSize is the number of registers in one unit block.
const UnitBlockSize uint16 = 0x20

// Control offsets (read/write).
const (
	OffStartStop     uint16 = 0x00 // 1 = run, 0 = stop
	OffAmplitude     uint16 = 0x01 // percent, clamped to [20,100]
	OffOverloadReset uint16 = 0x02 // write 1 to pulse the reset line, auto-clears
)

// Status offsets (read-only).
const (
	OffPowerRaw        uint16 = 0x10 // raw ADC counts, no unit conversion
	OffFrequencyRaw    uint16 = 0x11 // raw frequency counts
	OffUnitFlags       uint16 = 0x12 // see UnitFlag*
	OffActualAmplitude uint16 = 0x13 // percent actually driven
	OffStateCode       uint16 = 0x14 // lifecycle state ordinal
	OffStartCount      uint16 = 0x15
	OffRuntimeLo       uint16 = 0x16 // runtime seconds, low word
	OffRuntimeHi       uint16 = 0x17
	OffLastFault       uint16 = 0x18 // last fault code
	OffFaultCount      uint16 = 0x19
)

// ---- SYSTEM FLAG BITS ----

const (
	SysFlagEnabled   uint16 = 1 << 0
	SysFlagEStop     uint16 = 1 << 1
	SysFlagWatchdog  uint16 = 1 << 2
	SysFlagCommFault uint16 = 1 << 3
)

// ---- UNIT FLAG BITS ----

const (
	UnitFlagRunning   uint16 = 1 << 0
	UnitFlagOverload  uint16 = 1 << 1
	UnitFlagFreqLock  uint16 = 1 << 2
	UnitFlagCommFault uint16 = 1 << 3
	UnitFlagOverTemp  uint16 = 1 << 4
	UnitFlagFault     uint16 = 1 << 5
)

// ---- LIMITS ----

// AmplitudeMin / AmplitudeMax bound the amplitude setpoint. Writes
// outside the range are clamped, never rejected.
const (
	AmplitudeMin uint16 = 20
	AmplitudeMax uint16 = 100
)

// MaxUnits is the number of physical channels the register map can carry.
const MaxUnits = 4

// FirmwareVersion is the value reported at RegFirmwareVersion (v1.0).
const FirmwareVersion uint16 = 0x0100

// UnitAddr resolves a per-unit register address.
func UnitAddr(unit int, offset uint16) uint16 {
	return UnitBase + uint16(unit)*UnitStride + offset
}
