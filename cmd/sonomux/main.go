// cmd/sonomux/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stverhae/sonomux/internal/config"
	"github.com/stverhae/sonomux/internal/coord"
	"github.com/stverhae/sonomux/internal/hal"
	"github.com/stverhae/sonomux/internal/hal/periphhal"
	"github.com/stverhae/sonomux/internal/mbslave"
	"github.com/stverhae/sonomux/internal/regmap"
	"github.com/stverhae/sonomux/internal/sonicator"
	"github.com/stverhae/sonomux/internal/transport/serial"
)

func main() {
	configPath := flag.String("config", "/etc/sonomux/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated channel hardware")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("[main] sonomux starting")

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *demo {
		cfg.Sonomux.HAL.Driver = "sim"
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)
	s := cfg.Sonomux

	// --------------------
	// Hardware
	// --------------------

	ios, clock, err := buildHAL(s)
	if err != nil {
		log.Fatalf("hal build failed: %v", err)
	}

	port, err := serial.Open(serial.Config{Port: s.Serial.Port, Baud: s.Serial.Baud})
	if err != nil {
		log.Fatalf("serial open failed: %v", err)
	}
	defer port.Close()

	// --------------------
	// Core wiring
	// --------------------

	store, err := regmap.New(len(s.Units))
	if err != nil {
		log.Fatalf("register map build failed: %v", err)
	}

	units := make([]*sonicator.Unit, len(ios))
	for i, io := range ios {
		units[i] = sonicator.New(i, io)
	}

	engine := mbslave.New(store, mbslave.Config{
		SlaveID:      s.Serial.SlaveID,
		FrameGapMs:   uint32(s.Modbus.FrameGapMs),
		CommWindowMs: uint32(s.Modbus.CommTimeoutMs),
	})

	c := coord.New(store, units, coord.Config{WatchdogMs: uint32(s.Loop.WatchdogMs)})
	runner := coord.NewRunner(c, engine, port, clock,
		time.Duration(s.Loop.IntervalMs)*time.Millisecond)

	// --------------------
	// Run until signal
	// --------------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	log.Printf("[main] slave id %d on %s @ %d baud, %d unit(s), hal=%s",
		s.Serial.SlaveID, s.Serial.Port, s.Serial.Baud, len(units), s.HAL.Driver)

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("[main] control loop exited: %v", err)
	}
}

// buildHAL assembles the per-unit line bundles for the configured
// driver. Config order is not unit order; blocks index by unit id.
func buildHAL(s config.SonomuxConfig) ([]hal.UnitIO, hal.Clock, error) {
	ios := make([]hal.UnitIO, len(s.Units))

	if s.HAL.Driver == "periph" {
		if err := periphhal.Init(); err != nil {
			return nil, nil, err
		}
		for _, u := range s.Units {
			io, err := periphhal.BuildUnitIO(u, nil)
			if err != nil {
				return nil, nil, err
			}
			ios[u.ID] = io
		}
		return ios, hal.NewClock(), nil
	}

	_, sims := hal.NewSimBoard(len(s.Units))
	for i, su := range sims {
		// Simulated channels lock immediately so a bench start
		// reaches RUNNING without stimulus.
		su.FreqLock.Set(true)
		ios[i] = su.IO()
	}
	return ios, hal.NewClock(), nil
}
