// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultBaud          = 115200
	DefaultIntervalMs    = 10
	DefaultWatchdogMs    = 250
	DefaultFrameGapMs    = 20
	DefaultCommTimeoutMs = 1000
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	s := &cfg.Sonomux

	if s.Serial.Baud == 0 {
		s.Serial.Baud = DefaultBaud
	}
	if s.Loop.IntervalMs == 0 {
		s.Loop.IntervalMs = DefaultIntervalMs
	}
	if s.Loop.WatchdogMs == 0 {
		s.Loop.WatchdogMs = DefaultWatchdogMs
	}
	if s.Modbus.FrameGapMs == 0 {
		s.Modbus.FrameGapMs = DefaultFrameGapMs
	}
	if s.Modbus.CommTimeoutMs == 0 {
		s.Modbus.CommTimeoutMs = DefaultCommTimeoutMs
	}
	if s.HAL.Driver == "" {
		s.HAL.Driver = "sim"
	}
}
