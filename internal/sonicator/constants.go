// internal/sonicator/constants.go
package sonicator

// Lifecycle timing constants, in milliseconds of monotonic clock time.
// These filter transient signal noise and size the reset pulse; they are
// part of the machine's safety behavior and MUST NOT be configurable.

// StartSettleMs is the dwell in STARTING before declaring RUNNING.
// Short enough that a start command is reflected as RUNNING well inside
// the 100 ms end-to-end register budget.
const StartSettleMs uint32 = 50

// StopSettleMs is the dwell in STOPPING before returning to IDLE.
const StopSettleMs uint32 = 50

// ResetPulseMs is the width of the overload-reset pulse.
const ResetPulseMs uint32 = 100

// FreqUnlockGraceMs is how long the frequency-lock input may stay low
// while RUNNING before the unit faults.
const FreqUnlockGraceMs uint32 = 1000
