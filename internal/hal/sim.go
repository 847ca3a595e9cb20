// internal/hal/sim.go
package hal

import "sync"

// Sim types back the firmware with in-memory lines. They serve the test
// suites and the -demo mode of cmd/sonomux; a bench harness flips the
// inputs and observes the outputs.

// SimClock is a manually advanced millisecond clock.
type SimClock struct {
	mu sync.Mutex
	ms uint32
}

func (c *SimClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Advance moves the clock forward by d milliseconds.
func (c *SimClock) Advance(d uint32) {
	c.mu.Lock()
	c.ms += d
	c.mu.Unlock()
}

// SimInput is a settable digital input.
type SimInput struct {
	mu    sync.Mutex
	level bool
	err   error
}

func (i *SimInput) Read() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.level, i.err
}

// Set drives the simulated line.
func (i *SimInput) Set(level bool) {
	i.mu.Lock()
	i.level = level
	i.mu.Unlock()
}

// Fail makes every Read return err (nil restores the line).
func (i *SimInput) Fail(err error) {
	i.mu.Lock()
	i.err = err
	i.mu.Unlock()
}

// SimOutput records the last level written to a digital output.
type SimOutput struct {
	mu    sync.Mutex
	level bool
}

func (o *SimOutput) Write(level bool) error {
	o.mu.Lock()
	o.level = level
	o.mu.Unlock()
	return nil
}

// Level reports the last written level.
func (o *SimOutput) Level() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// SimAnalog is a settable raw sample source.
type SimAnalog struct {
	mu  sync.Mutex
	raw uint16
}

func (a *SimAnalog) ReadRaw() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raw, nil
}

// SetRaw sets the sample returned by ReadRaw, clamped to 10 bits.
func (a *SimAnalog) SetRaw(v uint16) {
	if v > 1023 {
		v = 1023
	}
	a.mu.Lock()
	a.raw = v
	a.mu.Unlock()
}

// SimPWM records duty and enable state.
type SimPWM struct {
	mu      sync.Mutex
	duty    uint8
	enabled bool
}

func (p *SimPWM) SetDuty(percent uint8) error {
	p.mu.Lock()
	p.duty = percent
	p.mu.Unlock()
	return nil
}

func (p *SimPWM) Enable() error {
	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	return nil
}

func (p *SimPWM) Disable() error {
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
	return nil
}

// Duty reports the last duty written.
func (p *SimPWM) Duty() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// Enabled reports whether the channel is energized.
func (p *SimPWM) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SimUnit is one fully simulated sonicator channel.
type SimUnit struct {
	Start     *SimOutput
	Reset     *SimOutput
	Overload  *SimInput
	FreqLock  *SimInput
	Amplitude *SimPWM
	Power     *SimAnalog
	Frequency *SimAnalog
}

// IO returns the UnitIO view of the simulated channel.
func (u *SimUnit) IO() UnitIO {
	return UnitIO{
		Start:     u.Start,
		Reset:     u.Reset,
		Overload:  u.Overload,
		FreqLock:  u.FreqLock,
		Amplitude: u.Amplitude,
		Power:     u.Power,
		Frequency: u.Frequency,
	}
}

// NewSimUnit builds one simulated channel with all lines idle.
func NewSimUnit() *SimUnit {
	return &SimUnit{
		Start:     &SimOutput{},
		Reset:     &SimOutput{},
		Overload:  &SimInput{},
		FreqLock:  &SimInput{},
		Amplitude: &SimPWM{},
		Power:     &SimAnalog{},
		Frequency: &SimAnalog{},
	}
}

// NewSimBoard builds n simulated channels sharing one manual clock.
func NewSimBoard(n int) (*SimClock, []*SimUnit) {
	clk := &SimClock{}
	units := make([]*SimUnit, n)
	for i := range units {
		units[i] = NewSimUnit()
	}
	return clk, units
}
