// internal/monitor/poller.go
package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/stverhae/sonomux/internal/regmap"
)

// Client abstracts the Modbus read the poller needs. The byte-slice
// signature matches github.com/goburrow/modbus, so a master client
// satisfies it directly.
type Client interface {
	ReadHoldingRegisters(addr, qty uint16) ([]byte, error) // FC 3
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Units    int
	Interval time.Duration
}

// Poller is a dumb, clock-driven reader of the firmware's register map.
type Poller struct {
	cfg    Config
	client Client
}

// New creates a poller with immutable config.
func New(cfg Config, client Client) (*Poller, error) {
	if cfg.Units < 1 || cfg.Units > regmap.MaxUnits {
		return nil, fmt.Errorf("monitor: unit count %d out of range 1..%d", cfg.Units, regmap.MaxUnits)
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("monitor: interval must be > 0")
	}
	return &Poller{cfg: cfg, client: client}, nil
}

// PollOnce performs exactly one poll cycle: the system block, then each
// unit's status sub-block. All-or-nothing: any failure aborts the cycle.
func (p *Poller) PollOnce() Result {
	res := Result{At: time.Now()}

	sys, err := p.readBlock(regmap.SystemBase, regmap.SystemSize)
	if err != nil {
		res.Err = err
		return res
	}
	if res.Snapshot.System, err = DecodeSystem(sys); err != nil {
		res.Err = err
		return res
	}

	units := make([]UnitStatus, 0, p.cfg.Units)
	for i := 0; i < p.cfg.Units; i++ {
		raw, err := p.readBlock(
			regmap.UnitAddr(i, regmap.UnitControlSize),
			regmap.UnitBlockSize-regmap.UnitControlSize)
		if err != nil {
			res.Err = err
			return res
		}
		u, err := DecodeUnit(raw)
		if err != nil {
			res.Err = err
			return res
		}
		units = append(units, u)
	}

	// Commit only if all reads succeeded.
	res.Snapshot.Units = units
	return res
}

func (p *Poller) readBlock(addr, qty uint16) ([]uint16, error) {
	raw, err := p.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	if len(raw) != int(qty)*2 {
		return nil, fmt.Errorf("monitor: read 0x%04x: got %d bytes, want %d", addr, len(raw), qty*2)
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return out, nil
}
