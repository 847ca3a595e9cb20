// internal/transport/serial/serial.go
package serial

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Config is the asynchronous serial link: 8 data bits, no parity, one
// stop bit, configurable baud.
type Config struct {
	Port string
	Baud int
}

// Open opens the port in 8N1 framing with a short read timeout, so the
// control loop's reads stay bounded and an idle bus returns (0, nil).
func Open(cfg Config) (serial.Port, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial: port required")
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}
	return port, nil
}
