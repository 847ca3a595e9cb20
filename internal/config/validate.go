// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/stverhae/sonomux/internal/regmap"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	s := cfg.Sonomux

	// ------------------------------------------------------------
	// SERIAL LINK VALIDATION
	// ------------------------------------------------------------

	if s.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if s.Serial.SlaveID < 1 || s.Serial.SlaveID > 247 {
		return fmt.Errorf("serial.slave_id %d outside Modbus node range 1..247", s.Serial.SlaveID)
	}
	if s.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", s.Serial.Baud)
	}

	// ------------------------------------------------------------
	// LOOP / FRAMING VALIDATION
	// ------------------------------------------------------------

	if s.Loop.IntervalMs < 0 {
		return fmt.Errorf("loop.interval_ms must be positive, got %d", s.Loop.IntervalMs)
	}
	if s.Loop.WatchdogMs != 0 && s.Loop.WatchdogMs <= s.Loop.IntervalMs {
		return fmt.Errorf(
			"loop.watchdog_ms (%d) must exceed loop.interval_ms (%d)",
			s.Loop.WatchdogMs, s.Loop.IntervalMs,
		)
	}
	if s.Modbus.FrameGapMs < 0 || s.Modbus.CommTimeoutMs < 0 {
		return fmt.Errorf("modbus frame_gap_ms / comm_timeout_ms must be positive")
	}

	// ------------------------------------------------------------
	// HAL VALIDATION
	// ------------------------------------------------------------

	switch s.HAL.Driver {
	case "", "sim", "periph":
	default:
		return fmt.Errorf("hal.driver %q unknown (want periph or sim)", s.HAL.Driver)
	}
	hardware := s.HAL.Driver == "periph"

	// ------------------------------------------------------------
	// UNIT VALIDATION
	// ------------------------------------------------------------

	if len(s.Units) == 0 {
		return fmt.Errorf("at least one unit is required")
	}
	if len(s.Units) > regmap.MaxUnits {
		return fmt.Errorf("%d units configured, register map carries at most %d", len(s.Units), regmap.MaxUnits)
	}

	// key = pin name, value = owning unit/role
	pinOwner := make(map[string]string)
	seenID := make(map[int]bool)

	for _, u := range s.Units {
		// Register blocks are dense by unit index, so ids must be too.
		if u.ID < 0 || u.ID >= len(s.Units) {
			return fmt.Errorf("unit id %d outside 0..%d (ids must be dense)", u.ID, len(s.Units)-1)
		}
		if seenID[u.ID] {
			return fmt.Errorf("unit id %d declared twice", u.ID)
		}
		seenID[u.ID] = true

		if !hardware {
			continue
		}

		pins := map[string]string{
			"start_pin":     u.StartPin,
			"reset_pin":     u.ResetPin,
			"overload_pin":  u.OverloadPin,
			"freq_lock_pin": u.FreqLockPin,
			"amplitude_pin": u.AmplitudePin,
			"frequency_pin": u.FrequencyPin,
		}
		for role, pin := range pins {
			if pin == "" {
				return fmt.Errorf("unit %d: %s is required with hal.driver=periph", u.ID, role)
			}
			owner := fmt.Sprintf("unit %d %s", u.ID, role)
			if prev, exists := pinOwner[pin]; exists {
				return fmt.Errorf("pin collision: %s claimed by both %s and %s", pin, prev, owner)
			}
			pinOwner[pin] = owner
		}
	}

	return nil
}
