// internal/regmap/regmap.go
package regmap

import (
	"errors"
	"fmt"
	"sync"
)

// Errors returned by Read/Write. The protocol engine maps them onto
// Modbus exception codes.
var (
	ErrIllegalAddress = errors.New("regmap: illegal address")
	ErrIllegalAccess  = errors.New("regmap: register is read-only")
)

// Map is the canonical table of every protocol-visible value. It is the
// only shared mutable structure in the firmware; all mutations funnel
// through its mutex so a second goroutine (serial reader, harness) can
// never violate the single-writer-per-field discipline.
type Map struct {
	mu     sync.Mutex
	units  int
	system [SystemSize]uint16
	global [GlobalSize]uint16
	unit   [MaxUnits][UnitBlockSize]uint16
}

// New builds a map with n unit blocks, all registers zero.
func New(n int) (*Map, error) {
	if n < 1 || n > MaxUnits {
		return nil, fmt.Errorf("regmap: unit count %d out of range 1..%d", n, MaxUnits)
	}
	m := &Map{units: n}
	m.system[RegWatchdogOK] = 1
	m.system[RegFirmwareVersion] = FirmwareVersion
	return m, nil
}

// Units reports the number of unit blocks.
func (m *Map) Units() int { return m.units }

// resolve maps an address onto its storage slot and access mode.
// Callers must hold m.mu.
func (m *Map) resolve(addr uint16) (slot *uint16, writable bool, ok bool) {
	switch {
	case addr < SystemBase+SystemSize:
		return &m.system[addr-SystemBase], false, true
	case addr >= GlobalBase && addr < GlobalBase+GlobalSize:
		return &m.global[addr-GlobalBase], true, true
	case addr >= UnitBase && addr < UnitBase+uint16(m.units)*UnitStride:
		idx := (addr - UnitBase) / UnitStride
		off := (addr - UnitBase) % UnitStride
		return &m.unit[idx][off], off < UnitControlSize, true
	default:
		return nil, false, false
	}
}

// Read returns the value at addr, or ErrIllegalAddress.
func (m *Map) Read(addr uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, _, ok := m.resolve(addr)
	if !ok {
		return 0, fmt.Errorf("%w: 0x%04x", ErrIllegalAddress, addr)
	}
	return *slot, nil
}

// ReadSpan returns count consecutive values starting at addr. Any
// unmapped address in the span fails the whole read.
func (m *Map) ReadSpan(addr uint16, count uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		slot, _, ok := m.resolve(addr + i)
		if !ok {
			return nil, fmt.Errorf("%w: 0x%04x", ErrIllegalAddress, addr+i)
		}
		out[i] = *slot
	}
	return out, nil
}

// Write applies one protocol-side register write. Amplitude setpoints
// are clamped, and the global enable / emergency stop registers update
// their derived system flag bits in the same call.
func (m *Map) Write(addr uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(addr, value)
}

// WriteSpan applies a multi-register write all-or-nothing: the whole
// span is checked for existence and writability before any register is
// mutated.
func (m *Map) WriteSpan(addr uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range values {
		a := addr + uint16(i)
		_, writable, ok := m.resolve(a)
		if !ok {
			return fmt.Errorf("%w: 0x%04x", ErrIllegalAddress, a)
		}
		if !writable {
			return fmt.Errorf("%w: 0x%04x", ErrIllegalAccess, a)
		}
	}
	for i, v := range values {
		if err := m.write(addr+uint16(i), v); err != nil {
			return err
		}
	}
	return nil
}

// write is the unlocked write path shared by Write and WriteSpan.
func (m *Map) write(addr uint16, value uint16) error {
	slot, writable, ok := m.resolve(addr)
	if !ok {
		return fmt.Errorf("%w: 0x%04x", ErrIllegalAddress, addr)
	}
	if !writable {
		return fmt.Errorf("%w: 0x%04x", ErrIllegalAccess, addr)
	}

	if isAmplitude(addr, m.units) {
		value = ClampAmplitude(value)
	}

	*slot = value

	// Derived system status bits follow the special global controls
	// synchronously, so a status read right after the write already
	// reflects them.
	switch addr {
	case RegGlobalEnable:
		m.setFlag(SysFlagEnabled, value != 0)
	case RegEmergencyStop:
		if value != 0 {
			m.setFlag(SysFlagEStop, true)
		}
	}
	return nil
}

// PutStatus writes a read-only register on behalf of its internal owner
// (unit state machine, coordinator, protocol engine). The range check
// still applies; the access mode does not.
func (m *Map) PutStatus(addr uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, _, ok := m.resolve(addr)
	if !ok {
		return fmt.Errorf("%w: 0x%04x", ErrIllegalAddress, addr)
	}
	*slot = value
	return nil
}

// SetSystemFlag sets or clears bits of RegSystemFlags.
func (m *Map) SetSystemFlag(mask uint16, on bool) {
	m.mu.Lock()
	m.setFlag(mask, on)
	m.mu.Unlock()
}

func (m *Map) setFlag(mask uint16, on bool) {
	if on {
		m.system[RegSystemFlags] |= mask
	} else {
		m.system[RegSystemFlags] &^= mask
	}
}

// Consume reads a writable register and clears it in one step. It backs
// the write-then-auto-clear commands (overload reset, system reset) so
// a pulse is acted on at most once per tick.
func (m *Map) Consume(addr uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, writable, ok := m.resolve(addr)
	if !ok {
		return 0, fmt.Errorf("%w: 0x%04x", ErrIllegalAddress, addr)
	}
	if !writable {
		return 0, fmt.Errorf("%w: 0x%04x", ErrIllegalAccess, addr)
	}
	v := *slot
	*slot = 0
	return v, nil
}

// AddCommError bumps the comm error counter register, saturating.
func (m *Map) AddCommError() {
	m.mu.Lock()
	if m.system[RegCommErrors] != 0xFFFF {
		m.system[RegCommErrors]++
	}
	m.mu.Unlock()
}

// ClampAmplitude bounds an amplitude setpoint to [AmplitudeMin, AmplitudeMax].
func ClampAmplitude(v uint16) uint16 {
	if v < AmplitudeMin {
		return AmplitudeMin
	}
	if v > AmplitudeMax {
		return AmplitudeMax
	}
	return v
}

// isAmplitude reports whether addr is some unit's amplitude setpoint.
func isAmplitude(addr uint16, units int) bool {
	if addr < UnitBase || addr >= UnitBase+uint16(units)*UnitStride {
		return false
	}
	return (addr-UnitBase)%UnitStride == OffAmplitude
}
