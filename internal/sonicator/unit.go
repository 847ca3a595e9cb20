// internal/sonicator/unit.go
package sonicator

import (
	"log"

	"github.com/stverhae/sonomux/internal/hal"
	"github.com/stverhae/sonomux/internal/regmap"
)

// Inputs are the control fields one tick acts on. ResetRequested is a
// one-shot event, consumed from its register before it gets here.
type Inputs struct {
	StartStop      bool
	Amplitude      uint16
	ResetRequested bool
	GlobalEnable   bool
	CommFault      bool
}

// Status is the snapshot a tick produces. The coordinator writes it
// into the unit's status register sub-block; nothing else does.
type Status struct {
	State           State
	Previous        State
	Overload        bool
	FreqLocked      bool
	CommFault       bool
	PowerRaw        uint16
	FrequencyRaw    uint16
	ActualAmplitude uint16
	StartCount      uint16
	RuntimeSecs     uint32
	LastFault       FaultCode
	FaultCount      uint16
}

// Running reports whether the snapshot state is RUNNING.
func (s Status) Running() bool { return s.State == StateRunning }

// Unit is the state machine of one sonicator channel. It is the sole
// writer of that channel's HAL outputs and status fields. Created once
// at initialization in IDLE; never destroyed, only reset to IDLE.
type Unit struct {
	index int
	io    hal.UnitIO

	state     State
	prev      State
	enteredAt uint32
	lastNow   uint32
	haveNow   bool

	// inputs sampled this tick
	overloadIn bool
	freqLockIn bool
	powerRaw   uint16
	freqRaw    uint16
	hwErr      error

	// frequency-unlock debounce
	unlocked    bool
	unlockSince uint32

	// reset pulse, active between ticks
	resetActive    bool
	resetStartedAt uint32

	actualAmplitude uint16

	startCount  uint16
	runtimeMs   uint32
	faultCount  uint16
	lastFault   FaultCode
	lastFaultAt uint32
}

// New builds a unit in IDLE bound to its channel's lines.
func New(index int, io hal.UnitIO) *Unit {
	return &Unit{index: index, io: io}
}

// Index returns the unit's channel number.
func (u *Unit) Index() int { return u.index }

// State returns the current lifecycle state.
func (u *Unit) State() State { return u.state }

// Update runs one tick: sample inputs, evaluate transitions, drive
// outputs, and report the resulting status.
func (u *Unit) Update(now uint32, in Inputs) Status {
	u.sample()

	resetEnded := u.maintainResetPulse(now)

	if u.haveNow && u.state == StateRunning {
		u.runtimeMs += now - u.lastNow
	}

	switch u.state {
	case StateIdle:
		if u.hwErr != nil {
			u.fault(now, FaultHardware)
		} else if in.GlobalEnable && in.StartStop {
			u.startCount++
			u.transition(now, StateStarting)
		}

	case StateStarting:
		switch {
		case u.overloadIn:
			u.fault(now, FaultOverload)
		case u.hwErr != nil:
			u.fault(now, FaultHardware)
		case in.CommFault:
			u.fault(now, FaultCommTimeout)
		case !in.StartStop:
			u.transition(now, StateStopping)
		case now-u.enteredAt >= StartSettleMs:
			u.transition(now, StateRunning)
		}

	case StateRunning:
		switch {
		case u.overloadIn:
			u.fault(now, FaultOverload)
		case u.hwErr != nil:
			u.fault(now, FaultHardware)
		case in.CommFault:
			u.fault(now, FaultCommTimeout)
		case u.frequencyUnlocked(now):
			u.fault(now, FaultFreqUnlock)
		case !in.StartStop:
			u.transition(now, StateStopping)
		}

	case StateStopping:
		if now-u.enteredAt >= StopSettleMs {
			u.transition(now, StateIdle)
		}

	case StateOverload:
		if in.ResetRequested && !u.resetActive {
			u.firePulse(now)
		}
		// Restart inhibit: the unit leaves OVERLOAD only once the
		// input has actually cleared, no matter how many resets were
		// issued. The pulse keeps its full width on the line either way.
		if (in.ResetRequested || resetEnded) && !u.overloadIn {
			u.transition(now, StateIdle)
		}

	case StateFault:
		// Sticky. Emergency stop and watchdog latches need the
		// system reset; other causes clear on an explicit reset
		// command once the condition is gone.
		if in.ResetRequested && u.clearableFault() &&
			!u.overloadIn && u.hwErr == nil && !in.CommFault {
			u.transition(now, StateIdle)
		}
	}

	u.applyOutputs(in.Amplitude)

	u.lastNow = now
	u.haveNow = true
	return u.status(in)
}

// EmergencyStop forces the unit to a safe state immediately, bypassing
// STOPPING. Terminal until ClearFault.
func (u *Unit) EmergencyStop(now uint32) {
	u.forceSafe(now, FaultEmergencyStop, false)
}

// WatchdogTrip forces the unit to a safe state after a missed control
// loop deadline. Terminal until ClearFault.
func (u *Unit) WatchdogTrip(now uint32) {
	u.forceSafe(now, FaultWatchdog, true)
}

// ClearFault is the explicit external clear (system reset): the unit
// returns to IDLE with outputs de-energized. Counters are history and
// survive the clear.
func (u *Unit) ClearFault(now uint32) {
	u.dropPulse()
	u.transition(now, StateIdle)
	u.applyOutputs(0)
}

func (u *Unit) forceSafe(now uint32, code FaultCode, countIt bool) {
	u.dropPulse()
	if countIt {
		u.faultCount++
	}
	u.lastFault = code
	u.lastFaultAt = now
	u.transition(now, StateFault)
	u.applyOutputs(0)
}

// sample reads the channel's inputs for this tick. A HAL read error is
// a hardware fault; the last good readings are kept for the registers.
func (u *Unit) sample() {
	u.hwErr = nil

	ov, err := u.io.Overload.Read()
	if err != nil {
		u.hwErr = err
	} else {
		u.overloadIn = ov
	}

	fl, err := u.io.FreqLock.Read()
	if err != nil {
		u.hwErr = err
	} else {
		u.freqLockIn = fl
	}

	if p, err := u.io.Power.ReadRaw(); err != nil {
		u.hwErr = err
	} else {
		u.powerRaw = p
	}

	if f, err := u.io.Frequency.ReadRaw(); err != nil {
		u.hwErr = err
	} else {
		u.freqRaw = f
	}
}

// frequencyUnlocked debounces loss of frequency lock while RUNNING.
func (u *Unit) frequencyUnlocked(now uint32) bool {
	if u.freqLockIn {
		u.unlocked = false
		return false
	}
	if !u.unlocked {
		u.unlocked = true
		u.unlockSince = now
		return false
	}
	return now-u.unlockSince >= FreqUnlockGraceMs
}

// firePulse raises the reset line for ResetPulseMs.
func (u *Unit) firePulse(now uint32) {
	if err := u.io.Reset.Write(true); err != nil {
		u.hwErr = err
		return
	}
	u.resetActive = true
	u.resetStartedAt = now
}

// maintainResetPulse drops the reset line when the pulse width has
// elapsed. Reports true on the tick the pulse ends.
func (u *Unit) maintainResetPulse(now uint32) bool {
	if !u.resetActive || now-u.resetStartedAt < ResetPulseMs {
		return false
	}
	u.dropPulse()
	return true
}

func (u *Unit) dropPulse() {
	_ = u.io.Reset.Write(false)
	u.resetActive = false
}

// applyOutputs drives the start line and amplitude PWM for the current
// state. Everything outside STARTING/RUNNING is de-energized.
func (u *Unit) applyOutputs(amplitude uint16) {
	energized := u.state == StateStarting || u.state == StateRunning
	if !energized {
		_ = u.io.Start.Write(false)
		_ = u.io.Amplitude.SetDuty(0)
		_ = u.io.Amplitude.Disable()
		u.actualAmplitude = 0
		return
	}

	amp := regmap.ClampAmplitude(amplitude)
	if err := u.io.Start.Write(true); err != nil {
		u.hwErr = err
	}
	if err := u.io.Amplitude.SetDuty(uint8(amp)); err != nil {
		u.hwErr = err
	}
	if err := u.io.Amplitude.Enable(); err != nil {
		u.hwErr = err
	}
	u.actualAmplitude = amp
}

// clearableFault reports whether the latched fault may be cleared by a
// unit-level reset command. Emergency stop and watchdog trips only
// clear through the system reset.
func (u *Unit) clearableFault() bool {
	return u.lastFault != FaultEmergencyStop && u.lastFault != FaultWatchdog
}

func (u *Unit) fault(now uint32, code FaultCode) {
	u.faultCount++
	u.lastFault = code
	u.lastFaultAt = now
	if code == FaultOverload {
		u.transition(now, StateOverload)
	} else {
		u.transition(now, StateFault)
	}
}

func (u *Unit) transition(now uint32, next State) {
	if next == u.state {
		return
	}
	u.prev = u.state
	u.state = next
	u.enteredAt = now
	switch next {
	case StateOverload, StateFault:
		log.Printf("[unit %d] %s -> %s (%s)", u.index, u.prev, next, u.lastFault)
	default:
		log.Printf("[unit %d] %s -> %s", u.index, u.prev, next)
	}
}

func (u *Unit) status(in Inputs) Status {
	return Status{
		State:           u.state,
		Previous:        u.prev,
		Overload:        u.state == StateOverload,
		FreqLocked:      u.freqLockIn,
		CommFault:       in.CommFault,
		PowerRaw:        u.powerRaw,
		FrequencyRaw:    u.freqRaw,
		ActualAmplitude: u.actualAmplitude,
		StartCount:      u.startCount,
		RuntimeSecs:     u.runtimeMs / 1000,
		LastFault:       u.lastFault,
		FaultCount:      u.faultCount,
	}
}
