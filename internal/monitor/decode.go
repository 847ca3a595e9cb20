// internal/monitor/decode.go
package monitor

import (
	"errors"

	"github.com/stverhae/sonomux/internal/regmap"
	"github.com/stverhae/sonomux/internal/sonicator"
)

// Decoders for the register blocks as they travel on the wire. Layout
// is protocol-locked. No IO. No side effects.

// ErrShortBlock is returned when a register block is shorter than its
// protocol-locked size.
var ErrShortBlock = errors.New("monitor: short register block")

// DecodeSystem decodes the full system status block, registers 0x0000
// up to SystemSize words.
func DecodeSystem(regs []uint16) (SystemStatus, error) {
	if len(regs) < int(regmap.SystemSize) {
		return SystemStatus{}, ErrShortBlock
	}

	flags := regs[regmap.RegSystemFlags]
	return SystemStatus{
		Enabled:       flags&regmap.SysFlagEnabled != 0,
		EStop:         flags&regmap.SysFlagEStop != 0,
		Watchdog:      flags&regmap.SysFlagWatchdog != 0,
		CommFault:     flags&regmap.SysFlagCommFault != 0,
		ActiveCount:   regs[regmap.RegActiveCount],
		ActiveMask:    regs[regmap.RegActiveMask],
		WatchdogOK:    regs[regmap.RegWatchdogOK] != 0,
		CommErrors:    regs[regmap.RegCommErrors],
		LastException: regs[regmap.RegLastException],
		UptimeSecs:    uint32(regs[regmap.RegUptimeLo]) | uint32(regs[regmap.RegUptimeHi])<<16,
		Firmware:      regs[regmap.RegFirmwareVersion],
	}, nil
}

// DecodeUnit decodes one unit's status sub-block, registers unit base
// +0x10 up to UnitControlSize words.
func DecodeUnit(regs []uint16) (UnitStatus, error) {
	if len(regs) < int(regmap.UnitBlockSize-regmap.UnitControlSize) {
		return UnitStatus{}, ErrShortBlock
	}

	// regs is the status half: index by offset minus UnitControlSize.
	at := func(off uint16) uint16 { return regs[off-regmap.UnitControlSize] }

	flags := at(regmap.OffUnitFlags)
	return UnitStatus{
		State:           sonicator.State(at(regmap.OffStateCode)),
		Running:         flags&regmap.UnitFlagRunning != 0,
		Overload:        flags&regmap.UnitFlagOverload != 0,
		FreqLocked:      flags&regmap.UnitFlagFreqLock != 0,
		CommFault:       flags&regmap.UnitFlagCommFault != 0,
		Fault:           flags&regmap.UnitFlagFault != 0,
		PowerRaw:        at(regmap.OffPowerRaw),
		FrequencyRaw:    at(regmap.OffFrequencyRaw),
		ActualAmplitude: at(regmap.OffActualAmplitude),
		StartCount:      at(regmap.OffStartCount),
		RuntimeSecs:     uint32(at(regmap.OffRuntimeLo)) | uint32(at(regmap.OffRuntimeHi))<<16,
		LastFault:       sonicator.FaultCode(at(regmap.OffLastFault)),
		FaultCount:      at(regmap.OffFaultCount),
	}, nil
}
