// internal/hal/periphhal/periphhal.go

// Package periphhal backs the hal contracts with real pins through
// periph.io. Pin names are whatever the host's gpio registry knows
// ("GPIO17", "P1_11", ...).
package periphhal

import (
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/stverhae/sonomux/internal/hal"
)

// pwmFrequency is the carrier for the amplitude drive; the generator
// side low-pass filters it into a DC setpoint.
const pwmFrequency = physic.KiloHertz

// Init initializes the periph host drivers. Call once before building
// any line.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periphhal: host init: %w", err)
	}
	return nil
}

func byName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periphhal: no pin named %q", name)
	}
	return p, nil
}

// ---- digital in ----

type inPin struct {
	p gpio.PinIO
}

func (i inPin) Read() (bool, error) { return i.p.Read() == gpio.High, nil }

// Input configures name as a pulled-down digital input.
func Input(name string) (hal.DigitalInput, error) {
	p, err := byName(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("periphhal: %s as input: %w", name, err)
	}
	return inPin{p}, nil
}

// ---- digital out ----

type outPin struct {
	p gpio.PinIO
}

func (o outPin) Write(level bool) error { return o.p.Out(gpio.Level(level)) }

// Output configures name as a digital output, initially low.
func Output(name string) (hal.DigitalOutput, error) {
	p, err := byName(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("periphhal: %s as output: %w", name, err)
	}
	return outPin{p}, nil
}

// ---- pwm out ----

type pwmPin struct {
	p       gpio.PinIO
	percent uint8
	enabled bool
}

func (w *pwmPin) apply() error {
	if !w.enabled || w.percent == 0 {
		return w.p.Out(gpio.Low)
	}
	duty := gpio.Duty(uint64(gpio.DutyMax) * uint64(w.percent) / 100)
	return w.p.PWM(duty, pwmFrequency)
}

func (w *pwmPin) SetDuty(percent uint8) error {
	if percent > 100 {
		percent = 100
	}
	w.percent = percent
	return w.apply()
}

func (w *pwmPin) Enable() error {
	w.enabled = true
	return w.apply()
}

func (w *pwmPin) Disable() error {
	w.enabled = false
	return w.apply()
}

// PWM configures name as a PWM output, initially disabled.
func PWM(name string) (hal.PWMOutput, error) {
	p, err := byName(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("periphhal: %s as pwm: %w", name, err)
	}
	return &pwmPin{p: p}, nil
}

// ---- analog in ----

type adcPin struct {
	p analog.PinADC
}

func (a adcPin) ReadRaw() (uint16, error) {
	s, err := a.p.Read()
	if err != nil {
		return 0, err
	}
	raw := s.Raw
	if raw < 0 {
		raw = 0
	}
	if raw > 1023 {
		raw = 1023
	}
	return uint16(raw), nil
}

// Analog adapts a periph ADC pin to the 10-bit raw contract.
func Analog(p analog.PinADC) hal.AnalogInput {
	return adcPin{p}
}

// nullAnalog reports zero counts for boards without the sense wired.
type nullAnalog struct{}

func (nullAnalog) ReadRaw() (uint16, error) { return 0, nil }

// NullAnalog is the placeholder source for an unwired analog input.
func NullAnalog() hal.AnalogInput { return nullAnalog{} }

// ---- frequency counter ----

// pulseCounter counts rising edges from an interrupt-style wait in its
// own goroutine. The goroutine is strictly a producer into the atomic
// counter; the control loop consumes deltas from it.
type pulseCounter struct {
	p     gpio.PinIO
	count atomic.Uint32
	last  uint32
	done  chan struct{}
}

func (c *pulseCounter) run() {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		if c.p.WaitForEdge(time.Second) {
			c.count.Add(1)
		}
	}
}

// ReadRaw returns the edge count since the previous sample.
func (c *pulseCounter) ReadRaw() (uint16, error) {
	now := c.count.Load()
	delta := now - c.last
	c.last = now
	if delta > 0xFFFF {
		delta = 0xFFFF
	}
	return uint16(delta), nil
}

// Close stops the edge-wait goroutine.
func (c *pulseCounter) Close() error {
	close(c.done)
	return c.p.Halt()
}

// Frequency configures name as a rising-edge counter.
func Frequency(name string) (hal.AnalogInput, error) {
	p, err := byName(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("periphhal: %s as edge counter: %w", name, err)
	}
	c := &pulseCounter{p: p, done: make(chan struct{})}
	go c.run()
	return c, nil
}
