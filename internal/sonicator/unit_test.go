// internal/sonicator/unit_test.go
package sonicator

import (
	"errors"
	"testing"

	"github.com/stverhae/sonomux/internal/hal"
)

func newUnit(t *testing.T) (*Unit, *hal.SimUnit) {
	t.Helper()
	su := hal.NewSimUnit()
	su.FreqLock.Set(true)
	return New(0, su.IO()), su
}

func runInputs(amp uint16) Inputs {
	return Inputs{StartStop: true, Amplitude: amp, GlobalEnable: true}
}

// startUnit walks a unit from IDLE to RUNNING.
func startUnit(t *testing.T, u *Unit, now *uint32, amp uint16) {
	t.Helper()
	u.Update(*now, runInputs(amp))
	if u.State() != StateStarting {
		t.Fatalf("state = %s, want STARTING", u.State())
	}
	*now += StartSettleMs
	u.Update(*now, runInputs(amp))
	if u.State() != StateRunning {
		t.Fatalf("state = %s, want RUNNING", u.State())
	}
}

func TestStartToRunning(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)

	startUnit(t, u, &now, 60)

	if !su.Start.Level() {
		t.Fatal("start line not energized while RUNNING")
	}
	if !su.Amplitude.Enabled() || su.Amplitude.Duty() != 60 {
		t.Fatalf("amplitude drive enabled=%v duty=%d, want enabled at 60",
			su.Amplitude.Enabled(), su.Amplitude.Duty())
	}
}

func TestStartBlockedWithoutGlobalEnable(t *testing.T) {
	u, _ := newUnit(t)

	st := u.Update(0, Inputs{StartStop: true, Amplitude: 50})
	if st.State != StateIdle {
		t.Fatalf("state = %s, want IDLE with enable off", st.State)
	}
}

func TestStopViaStopping(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	now += 10
	st := u.Update(now, Inputs{GlobalEnable: true, Amplitude: 50})
	if st.State != StateStopping {
		t.Fatalf("state = %s, want STOPPING", st.State)
	}
	if su.Start.Level() || su.Amplitude.Enabled() {
		t.Fatal("outputs energized during STOPPING")
	}

	now += StopSettleMs
	st = u.Update(now, Inputs{GlobalEnable: true, Amplitude: 50})
	if st.State != StateIdle {
		t.Fatalf("state = %s, want IDLE after settle", st.State)
	}
	if st.Previous != StateStopping {
		t.Fatalf("previous = %s, want STOPPING", st.Previous)
	}
}

func TestAmplitudeClampedAtDrive(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 150)

	if su.Amplitude.Duty() != 100 {
		t.Fatalf("duty = %d, want 100 (clamped)", su.Amplitude.Duty())
	}

	now += 10
	st := u.Update(now, runInputs(3))
	if su.Amplitude.Duty() != 20 || st.ActualAmplitude != 20 {
		t.Fatalf("duty = %d actual = %d, want 20 (clamped)", su.Amplitude.Duty(), st.ActualAmplitude)
	}
}

func TestOverloadFromRunning(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	su.Overload.Set(true)
	now += 10
	st := u.Update(now, runInputs(50))

	if st.State != StateOverload {
		t.Fatalf("state = %s, want OVERLOAD", st.State)
	}
	if st.Running() || !st.Overload {
		t.Fatalf("status running=%v overload=%v, want false/true", st.Running(), st.Overload)
	}
	if su.Start.Level() || su.Amplitude.Enabled() {
		t.Fatal("outputs energized in OVERLOAD")
	}
	if st.LastFault != FaultOverload || st.FaultCount != 1 {
		t.Fatalf("fault = %s count = %d", st.LastFault, st.FaultCount)
	}
}

func TestOverloadRestartInhibit(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	su.Overload.Set(true)
	now += 10
	u.Update(now, runInputs(50))

	// Any number of resets while the input stays asserted never
	// leaves OVERLOAD.
	for i := 0; i < 5; i++ {
		now += 10
		st := u.Update(now, Inputs{GlobalEnable: true, ResetRequested: true, Amplitude: 50})
		if st.State != StateOverload {
			t.Fatalf("reset %d: state = %s, want OVERLOAD", i, st.State)
		}
		now += ResetPulseMs
		st = u.Update(now, Inputs{GlobalEnable: true, Amplitude: 50})
		if st.State != StateOverload {
			t.Fatalf("after pulse %d: state = %s, want OVERLOAD", i, st.State)
		}
	}

	// Once the input clears, the next reset leaves within one tick.
	su.Overload.Set(false)
	now += 10
	st := u.Update(now, Inputs{GlobalEnable: true, ResetRequested: true, Amplitude: 50})
	if st.State != StateIdle {
		t.Fatalf("state = %s, want IDLE after reset with input clear", st.State)
	}
}

func TestResetPulseWidth(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	su.Overload.Set(true)
	now += 10
	u.Update(now, runInputs(50))

	now += 10
	u.Update(now, Inputs{GlobalEnable: true, ResetRequested: true})
	if !su.Reset.Level() {
		t.Fatal("reset line not raised by reset command")
	}

	u.Update(now+ResetPulseMs-1, Inputs{GlobalEnable: true})
	if !su.Reset.Level() {
		t.Fatal("reset pulse dropped before its width elapsed")
	}

	u.Update(now+ResetPulseMs, Inputs{GlobalEnable: true})
	if su.Reset.Level() {
		t.Fatal("reset pulse still high after its width elapsed")
	}
}

func TestStartingAbortsOnOverload(t *testing.T) {
	u, su := newUnit(t)

	u.Update(0, runInputs(50))
	su.Overload.Set(true)
	st := u.Update(10, runInputs(50))
	if st.State != StateOverload {
		t.Fatalf("state = %s, want OVERLOAD during settle", st.State)
	}
}

func TestCommFaultWhileRunning(t *testing.T) {
	u, _ := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	now += 10
	in := runInputs(50)
	in.CommFault = true
	st := u.Update(now, in)
	if st.State != StateFault || st.LastFault != FaultCommTimeout {
		t.Fatalf("state = %s fault = %s, want FAULT/comm timeout", st.State, st.LastFault)
	}

	// Sticky: the condition disappearing is not a clear.
	now += 10
	st = u.Update(now, runInputs(50))
	if st.State != StateFault {
		t.Fatalf("state = %s, FAULT must not auto-clear", st.State)
	}

	// Explicit reset with the cause gone clears it.
	now += 10
	st = u.Update(now, Inputs{GlobalEnable: true, ResetRequested: true})
	if st.State != StateIdle {
		t.Fatalf("state = %s, want IDLE after explicit clear", st.State)
	}
}

func TestHardwareFault(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	su.Overload.Fail(errors.New("line stuck"))
	now += 10
	st := u.Update(now, runInputs(50))
	if st.State != StateFault || st.LastFault != FaultHardware {
		t.Fatalf("state = %s fault = %s, want FAULT/hardware", st.State, st.LastFault)
	}
}

func TestFrequencyUnlockGrace(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	su.FreqLock.Set(false)
	now += 10
	st := u.Update(now, runInputs(50))
	if st.State != StateRunning {
		t.Fatalf("state = %s, unlock must be tolerated within grace", st.State)
	}

	now += FreqUnlockGraceMs
	st = u.Update(now, runInputs(50))
	if st.State != StateFault || st.LastFault != FaultFreqUnlock {
		t.Fatalf("state = %s fault = %s, want FAULT/frequency unlock", st.State, st.LastFault)
	}
}

func TestEmergencyStopTerminal(t *testing.T) {
	u, su := newUnit(t)
	now := uint32(0)
	startUnit(t, u, &now, 50)

	u.EmergencyStop(now)
	if u.State() != StateFault {
		t.Fatalf("state = %s, want FAULT after estop", u.State())
	}
	if su.Start.Level() || su.Amplitude.Enabled() {
		t.Fatal("outputs energized after emergency stop")
	}

	// A unit-level reset never clears an emergency stop.
	now += 10
	st := u.Update(now, Inputs{GlobalEnable: true, ResetRequested: true})
	if st.State != StateFault {
		t.Fatalf("state = %s, estop must survive unit reset", st.State)
	}

	u.ClearFault(now)
	if u.State() != StateIdle {
		t.Fatalf("state = %s, want IDLE after system clear", u.State())
	}
}

func TestCounters(t *testing.T) {
	u, _ := newUnit(t)
	now := uint32(0)

	startUnit(t, u, &now, 50)
	for i := 0; i < 5; i++ {
		now += 1000
		u.Update(now, runInputs(50))
	}

	now += 10
	st := u.Update(now, Inputs{GlobalEnable: true})
	if st.StartCount != 1 {
		t.Fatalf("start count = %d, want 1", st.StartCount)
	}
	if st.RuntimeSecs != 5 {
		t.Fatalf("runtime = %ds, want 5", st.RuntimeSecs)
	}

	now += StopSettleMs
	u.Update(now, Inputs{GlobalEnable: true})
	now += 10
	startUnit(t, u, &now, 50)
	now += 10
	st = u.Update(now, runInputs(50))
	if st.StartCount != 2 {
		t.Fatalf("start count = %d, want 2", st.StartCount)
	}
}
