// internal/hal/hal.go
package hal

// The firmware core touches hardware only through these contracts.
// Implementations live in hal/periphhal (real pins) and in Sim (bench/tests).

// DigitalInput reads one digital line.
type DigitalInput interface {
	Read() (bool, error)
}

// DigitalOutput drives one digital line.
type DigitalOutput interface {
	Write(level bool) error
}

// AnalogInput reads one raw sample, 0..1023 counts.
// No unit conversion happens on this side of the wire.
type AnalogInput interface {
	ReadRaw() (uint16, error)
}

// PWMOutput drives one PWM channel. Duty is percent of full scale.
type PWMOutput interface {
	SetDuty(percent uint8) error
	Enable() error
	Disable() error
}

// Clock is a monotonic millisecond clock. Wraparound is handled by
// callers using unsigned subtraction.
type Clock interface {
	Millis() uint32
}

// UnitIO bundles the lines of one sonicator channel.
type UnitIO struct {
	Start     DigitalOutput // energizes the sonicator
	Reset     DigitalOutput // overload-reset pulse line
	Overload  DigitalInput  // asserted while the generator reports overload
	FreqLock  DigitalInput  // asserted while output frequency is locked
	Amplitude PWMOutput     // amplitude drive
	Power     AnalogInput   // raw power sense counts
	Frequency AnalogInput   // raw frequency counts (edge counter or divider)
}
