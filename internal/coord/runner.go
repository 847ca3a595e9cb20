// internal/coord/runner.go
package coord

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/stverhae/sonomux/internal/hal"
	"github.com/stverhae/sonomux/internal/mbslave"
)

// Runner owns the flat control loop: one cycle pumps protocol bytes,
// ticks every unit, recomputes aggregates, then transmits any staged
// response. Single-threaded and non-preemptive; nothing in the cycle
// blocks for an unbounded time.
type Runner struct {
	coord    *Coordinator
	engine   *mbslave.Engine
	port     io.ReadWriter
	clock    hal.Clock
	interval time.Duration

	rx [64]byte
}

// NewRunner wires the loop. The port's reads must be bounded (a serial
// port with a short read timeout, or an in-memory pipe in tests).
func NewRunner(c *Coordinator, e *mbslave.Engine, port io.ReadWriter, clock hal.Clock, interval time.Duration) *Runner {
	return &Runner{coord: c, engine: e, port: port, clock: clock, interval: interval}
}

// Run drives the loop until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[runner] control loop started, interval %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[runner] control loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Cycle()
		}
	}
}

// Cycle runs exactly one control cycle. Ordering within the cycle is
// the contract: control writes land before state evaluation, status
// writes before response serialization.
func (r *Runner) Cycle() {
	now := r.clock.Millis()

	// 1. Protocol byte processing: drain pending bytes, then let the
	// engine close out and dispatch any completed frame. Control
	// register writes take effect here.
	r.pump(now)
	res := r.engine.Poll(now)

	// 2. Unit updates and 3. aggregates.
	r.coord.Tick(now)

	// 4. Response serialization, after the status registers are
	// current for this cycle.
	if res != nil {
		if _, err := r.port.Write(res); err != nil {
			log.Printf("[runner] response write failed: %v", err)
		}
	}
}

// pump reads whatever the transport has buffered. A bounded-read port
// returns (0, nil) when idle.
func (r *Runner) pump(now uint32) {
	for {
		n, err := r.port.Read(r.rx[:])
		if n > 0 {
			r.engine.Feed(r.rx[:n], now)
		}
		if err != nil || n == 0 {
			return
		}
	}
}
