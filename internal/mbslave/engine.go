// internal/mbslave/engine.go
package mbslave

import (
	"errors"
	"log"

	"github.com/stverhae/sonomux/internal/regmap"
)

// Supported function codes.
const (
	fnReadHolding   = 0x03
	fnWriteSingle   = 0x06
	fnWriteMultiple = 0x10
)

// Protocol limits from the Modbus application spec.
const (
	maxReadCount  = 125
	maxWriteCount = 123
)

// recvState is the receiver lifecycle.
type recvState uint8

const (
	stateIdle recvState = iota
	stateReceiving
	stateProcessing
	stateResponding
	stateTimeout
)

func (s recvState) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateReceiving:
		return "RECEIVING"
	case stateProcessing:
		return "PROCESSING"
	case stateResponding:
		return "RESPONDING"
	case stateTimeout:
		return "TIMEOUT"
	default:
		return "?"
	}
}

// Config holds the engine's wire parameters.
type Config struct {
	// SlaveID is the node id this engine answers to (1..247).
	SlaveID uint8
	// FrameGapMs is the inter-byte silence that ends a frame.
	FrameGapMs uint32
	// CommWindowMs is the no-valid-frame window after which the
	// engine enters TIMEOUT and raises the comm-fault bit.
	CommWindowMs uint32
}

// Engine is the slave side of Modbus RTU: it accumulates inbound bytes
// into frames, validates them, dispatches reads and writes against the
// register map, and serializes responses. It is driven from the control
// loop: Feed with received bytes, then Poll once per tick.
type Engine struct {
	cfg   Config
	store *regmap.Map

	state       recvState
	buf         []byte
	lastByteAt  uint32
	lastValidAt uint32
	started     bool
	commFault   bool
	cnt         Counters
}

// New builds an engine bound to the given register map.
func New(store *regmap.Map, cfg Config) *Engine {
	return &Engine{cfg: cfg, store: store, buf: make([]byte, 0, MaxADU)}
}

// Counters returns a copy of the bus counters.
func (e *Engine) Counters() Counters { return e.cnt }

// CommFault reports whether the engine is in its comm-timeout state.
func (e *Engine) CommFault() bool { return e.commFault }

// Feed appends received serial bytes to the frame under assembly.
func (e *Engine) Feed(p []byte, now uint32) {
	if len(p) == 0 {
		return
	}
	if !e.started {
		e.started = true
		e.lastValidAt = now
	}
	if len(e.buf)+len(p) > MaxADU {
		e.cnt.Overruns++
		e.buf = e.buf[:0]
		e.state = stateIdle
		return
	}
	e.buf = append(e.buf, p...)
	e.lastByteAt = now
	e.state = stateReceiving
}

// Poll advances the receiver. When the inter-byte gap has elapsed the
// assembled frame is validated and dispatched, and the serialized
// response (nil for silent drops) is returned. Poll also maintains the
// comm-timeout state.
func (e *Engine) Poll(now uint32) []byte {
	if !e.started {
		e.started = true
		e.lastValidAt = now
	}

	var res []byte
	if e.state == stateReceiving && now-e.lastByteAt >= e.cfg.FrameGapMs {
		e.state = stateProcessing
		res = e.process(ADU(e.buf), now)
		e.buf = e.buf[:0]
		if res != nil {
			e.state = stateResponding
		}
		if e.state != stateTimeout {
			e.state = stateIdle
		}
	}

	if !e.commFault && now-e.lastValidAt >= e.cfg.CommWindowMs {
		e.commFault = true
		e.state = stateTimeout
		e.cnt.Timeouts++
		e.store.SetSystemFlag(regmap.SysFlagCommFault, true)
		e.store.AddCommError()
		log.Printf("[mbslave] comm timeout: no valid frame in %d ms", e.cfg.CommWindowMs)
	}

	return res
}

// process validates one assembled frame and dispatches it.
func (e *Engine) process(adu ADU, now uint32) []byte {
	e.cnt.BusMessages++

	if len(adu) < MinADU || !adu.CheckCRC() {
		// Damaged frames are dropped silently, never answered.
		e.cnt.CRCErrors++
		e.store.AddCommError()
		return nil
	}
	if adu.Node() != e.cfg.SlaveID {
		// Another node's traffic; normal on a multidrop bus.
		e.cnt.NotForUs++
		return nil
	}

	e.cnt.Requests++
	e.frameAccepted(now)

	pdu := adu.PDU()
	fn := pdu[0]
	switch fn {
	case fnReadHolding:
		return e.readHolding(fn, pdu[1:])
	case fnWriteSingle:
		return e.writeSingle(adu, fn, pdu[1:])
	case fnWriteMultiple:
		return e.writeMultiple(fn, pdu[1:])
	default:
		return e.exception(fn, ExcIllegalFunction)
	}
}

// frameAccepted resets the comm-timeout tracking on a valid request.
func (e *Engine) frameAccepted(now uint32) {
	e.lastValidAt = now
	if e.commFault {
		e.commFault = false
		e.store.SetSystemFlag(regmap.SysFlagCommFault, false)
		log.Printf("[mbslave] comm restored")
	}
}

// readHolding handles FC 0x03. Any unmapped address in the span aborts
// the whole read with an exception.
func (e *Engine) readHolding(fn uint8, body []byte) []byte {
	if len(body) != 4 {
		return e.exception(fn, ExcIllegalDataValue)
	}
	addr, count := u16(body[0:2]), u16(body[2:4])
	if count < 1 || count > maxReadCount {
		return e.exception(fn, ExcIllegalDataValue)
	}

	vals, err := e.store.ReadSpan(addr, count)
	if err != nil {
		return e.exception(fn, ExcIllegalDataAddress)
	}

	res := make([]byte, 0, headSz+2+2*len(vals)+crcSz)
	res = append(res, e.cfg.SlaveID, fn, byte(2*len(vals)))
	for _, v := range vals {
		res = putU16(res, v)
	}
	return AppendCRC(res)
}

// writeSingle handles FC 0x06, echoing the request on success.
func (e *Engine) writeSingle(adu ADU, fn uint8, body []byte) []byte {
	if len(body) != 4 {
		return e.exception(fn, ExcIllegalDataValue)
	}
	addr, value := u16(body[0:2]), u16(body[2:4])

	if err := e.store.Write(addr, value); err != nil {
		return e.exception(fn, mapWriteError(err))
	}

	echo := make([]byte, len(adu))
	copy(echo, adu)
	return echo
}

// writeMultiple handles FC 0x10. The span is applied all-or-nothing.
func (e *Engine) writeMultiple(fn uint8, body []byte) []byte {
	if len(body) < 5 {
		return e.exception(fn, ExcIllegalDataValue)
	}
	addr, count := u16(body[0:2]), u16(body[2:4])
	byteCount := int(body[4])
	if count < 1 || count > maxWriteCount || byteCount != 2*int(count) || len(body) != 5+byteCount {
		return e.exception(fn, ExcIllegalDataValue)
	}

	vals := make([]uint16, count)
	for i := range vals {
		vals[i] = u16(body[5+2*i : 7+2*i])
	}

	if err := e.store.WriteSpan(addr, vals); err != nil {
		return e.exception(fn, mapWriteError(err))
	}

	res := make([]byte, 0, headSz+5+crcSz)
	res = append(res, e.cfg.SlaveID, fn)
	res = putU16(res, addr)
	res = putU16(res, count)
	return AppendCRC(res)
}

// exception serializes an exception response and records it.
func (e *Engine) exception(fn uint8, exc Exception) []byte {
	e.cnt.Exceptions++
	_ = e.store.PutStatus(regmap.RegLastException, exc.Code())
	return AppendCRC([]byte{e.cfg.SlaveID, fn | excFlag, byte(exc)})
}

// mapWriteError translates register map errors onto exception codes.
// Wrong access mode is an addressing error on the wire; anything else
// the map rejects is a server-side failure.
func mapWriteError(err error) Exception {
	switch {
	case errors.Is(err, regmap.ErrIllegalAddress), errors.Is(err, regmap.ErrIllegalAccess):
		return ExcIllegalDataAddress
	default:
		return ExcServerFailure
	}
}
