// internal/coord/coord.go
package coord

import (
	"log"
	"math/bits"

	"github.com/stverhae/sonomux/internal/regmap"
	"github.com/stverhae/sonomux/internal/sonicator"
)

// Config holds the coordinator's loop supervision parameters.
type Config struct {
	// WatchdogMs is the maximum tolerated gap between ticks before
	// every unit is forced to a safe state.
	WatchdogMs uint32
}

// Coordinator advances every unit state machine each cycle, applies the
// global commands uniformly, and recomputes the system aggregates. It
// is the sole writer of the aggregate registers.
type Coordinator struct {
	cfg   Config
	store *regmap.Map
	units []*sonicator.Unit

	started      bool
	startedAt    uint32
	lastTick     uint32
	estopLatched bool
	wdLatched    bool
}

// New builds a coordinator over the given units and register map.
func New(store *regmap.Map, units []*sonicator.Unit, cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg, store: store, units: units}
}

// Tick runs one control cycle: global commands, then every unit in
// index order, then the aggregates. A fault in one unit never stops the
// others from ticking.
func (c *Coordinator) Tick(now uint32) {
	if !c.started {
		c.started = true
		c.startedAt = now
		c.lastTick = now
	}

	c.applySystemReset(now)
	c.applyEmergencyStop(now)
	c.checkWatchdog(now)
	c.lastTick = now

	enable := c.globalEnable()
	commFault := c.commFault()

	var mask uint16
	for i, u := range c.units {
		in := sonicator.Inputs{
			StartStop:      c.readControl(i, regmap.OffStartStop) != 0,
			Amplitude:      c.readControl(i, regmap.OffAmplitude),
			ResetRequested: c.consumeControl(i, regmap.OffOverloadReset) != 0,
			GlobalEnable:   enable,
			CommFault:      commFault,
		}
		st := u.Update(now, in)
		c.pushStatus(i, st)
		if st.Running() {
			mask |= 1 << uint(i)
		}
	}

	c.pushAggregates(now, mask)
}

// applySystemReset consumes the system reset register: it clears the
// emergency stop and watchdog latches and returns every unit to IDLE.
func (c *Coordinator) applySystemReset(now uint32) {
	v, err := c.store.Consume(regmap.RegSystemReset)
	if err != nil || v == 0 {
		return
	}

	log.Printf("[coord] system reset")
	c.estopLatched = false
	c.wdLatched = false
	_ = c.store.Write(regmap.RegEmergencyStop, 0)
	c.store.SetSystemFlag(regmap.SysFlagEStop, false)
	c.store.SetSystemFlag(regmap.SysFlagWatchdog, false)
	_ = c.store.PutStatus(regmap.RegWatchdogOK, 1)
	for _, u := range c.units {
		u.ClearFault(now)
	}
}

// applyEmergencyStop latches the emergency stop command and forces all
// units to a safe state within the same tick, bypassing STOPPING.
func (c *Coordinator) applyEmergencyStop(now uint32) {
	v, err := c.store.Read(regmap.RegEmergencyStop)
	if err != nil || v == 0 || c.estopLatched {
		return
	}

	log.Printf("[coord] emergency stop")
	c.estopLatched = true
	for _, u := range c.units {
		u.EmergencyStop(now)
	}
}

// checkWatchdog trips when the tick cadence was missed and escalates to
// a full safe-state reset of every unit.
func (c *Coordinator) checkWatchdog(now uint32) {
	if c.wdLatched || now-c.lastTick <= c.cfg.WatchdogMs {
		return
	}

	log.Printf("[coord] watchdog: tick gap %d ms exceeds %d ms", now-c.lastTick, c.cfg.WatchdogMs)
	c.wdLatched = true
	c.store.SetSystemFlag(regmap.SysFlagWatchdog, true)
	_ = c.store.PutStatus(regmap.RegWatchdogOK, 0)
	for _, u := range c.units {
		u.WatchdogTrip(now)
	}
}

func (c *Coordinator) globalEnable() bool {
	if c.estopLatched || c.wdLatched {
		return false
	}
	v, err := c.store.Read(regmap.RegGlobalEnable)
	return err == nil && v != 0
}

func (c *Coordinator) commFault() bool {
	v, err := c.store.Read(regmap.RegSystemFlags)
	return err == nil && v&regmap.SysFlagCommFault != 0
}

func (c *Coordinator) readControl(unit int, off uint16) uint16 {
	v, _ := c.store.Read(regmap.UnitAddr(unit, off))
	return v
}

func (c *Coordinator) consumeControl(unit int, off uint16) uint16 {
	v, _ := c.store.Consume(regmap.UnitAddr(unit, off))
	return v
}

// pushStatus writes one unit's status sub-block.
func (c *Coordinator) pushStatus(unit int, st sonicator.Status) {
	put := func(off uint16, v uint16) {
		_ = c.store.PutStatus(regmap.UnitAddr(unit, off), v)
	}

	var flags uint16
	if st.Running() {
		flags |= regmap.UnitFlagRunning
	}
	if st.Overload {
		flags |= regmap.UnitFlagOverload
	}
	if st.FreqLocked {
		flags |= regmap.UnitFlagFreqLock
	}
	if st.CommFault {
		flags |= regmap.UnitFlagCommFault
	}
	if st.State == sonicator.StateFault {
		flags |= regmap.UnitFlagFault
	}

	put(regmap.OffPowerRaw, st.PowerRaw)
	put(regmap.OffFrequencyRaw, st.FrequencyRaw)
	put(regmap.OffUnitFlags, flags)
	put(regmap.OffActualAmplitude, st.ActualAmplitude)
	put(regmap.OffStateCode, uint16(st.State))
	put(regmap.OffStartCount, st.StartCount)
	put(regmap.OffRuntimeLo, uint16(st.RuntimeSecs))
	put(regmap.OffRuntimeHi, uint16(st.RuntimeSecs>>16))
	put(regmap.OffLastFault, uint16(st.LastFault))
	put(regmap.OffFaultCount, st.FaultCount)
}

// pushAggregates recomputes active mask/count and the uptime words.
func (c *Coordinator) pushAggregates(now uint32, mask uint16) {
	_ = c.store.PutStatus(regmap.RegActiveMask, mask)
	_ = c.store.PutStatus(regmap.RegActiveCount, uint16(bits.OnesCount16(mask)))

	up := (now - c.startedAt) / 1000
	_ = c.store.PutStatus(regmap.RegUptimeLo, uint16(up))
	_ = c.store.PutStatus(regmap.RegUptimeHi, uint16(up>>16))
}
