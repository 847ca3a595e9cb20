// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Sonomux SonomuxConfig `yaml:"sonomux"`
}

type SonomuxConfig struct {
	Serial SerialConfig `yaml:"serial"`
	Loop   LoopConfig   `yaml:"loop"`
	Modbus ModbusConfig `yaml:"modbus"`
	HAL    HALConfig    `yaml:"hal"`
	Units  []UnitConfig `yaml:"units"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	SlaveID uint8  `yaml:"slave_id"`
}

// ---- CONTROL LOOP ----

type LoopConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	WatchdogMs int `yaml:"watchdog_ms"`
}

// ---- MODBUS FRAMING ----

type ModbusConfig struct {
	FrameGapMs    int `yaml:"frame_gap_ms"`
	CommTimeoutMs int `yaml:"comm_timeout_ms"`
}

// ---- HAL ----

type HALConfig struct {
	// Driver selects the hardware backend: "periph" or "sim".
	Driver string `yaml:"driver"`
}

// ---- UNIT ----

type UnitConfig struct {
	ID           int    `yaml:"id"`
	StartPin     string `yaml:"start_pin"`
	ResetPin     string `yaml:"reset_pin"`
	OverloadPin  string `yaml:"overload_pin"`
	FreqLockPin  string `yaml:"freq_lock_pin"`
	AmplitudePin string `yaml:"amplitude_pin"`
	FrequencyPin string `yaml:"frequency_pin"`
	// PowerChannel selects the board's ADC channel for power sense;
	// nil means no power sense is wired on this channel.
	PowerChannel *int `yaml:"power_channel"`
}

// Load reads and parses a config file. Validation is a separate step.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
