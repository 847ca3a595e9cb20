// internal/mbslave/engine_test.go
package mbslave

import (
	"bytes"
	"testing"

	"github.com/stverhae/sonomux/internal/regmap"
)

const (
	testSlave  = 2
	testGap    = 10
	testWindow = 100000
	otherSlave = 5
)

func newEngine(t *testing.T) (*Engine, *regmap.Map) {
	t.Helper()
	store, err := regmap.New(4)
	if err != nil {
		t.Fatalf("regmap.New: %v", err)
	}
	e := New(store, Config{SlaveID: testSlave, FrameGapMs: testGap, CommWindowMs: testWindow})
	return e, store
}

// frame builds a CRC-terminated request ADU.
func frame(id byte, fn byte, body ...byte) []byte {
	return AppendCRC(append([]byte{id, fn}, body...))
}

func words(vs ...uint16) []byte {
	var b []byte
	for _, v := range vs {
		b = putU16(b, v)
	}
	return b
}

// exchange feeds one frame and polls past the inter-byte gap.
func exchange(e *Engine, adu []byte, now uint32) []byte {
	e.Feed(adu, now)
	return e.Poll(now + testGap)
}

func commErrors(t *testing.T, store *regmap.Map) uint16 {
	t.Helper()
	v, err := store.Read(regmap.RegCommErrors)
	if err != nil {
		t.Fatalf("read comm errors: %v", err)
	}
	return v
}

func TestReadHolding(t *testing.T) {
	e, store := newEngine(t)
	_ = store.PutStatus(regmap.RegActiveCount, 3)
	_ = store.PutStatus(regmap.RegActiveMask, 0x0007)

	req := frame(testSlave, fnReadHolding, words(regmap.RegActiveCount, 2)...)
	res := exchange(e, req, 0)
	if res == nil {
		t.Fatal("no response")
	}

	want := AppendCRC([]byte{testSlave, fnReadHolding, 4, 0x00, 0x03, 0x00, 0x07})
	if !bytes.Equal(res, want) {
		t.Fatalf("response % x, want % x", res, want)
	}
	if !ADU(res).CheckCRC() {
		t.Fatal("response CRC does not verify")
	}
}

func TestReadHolding_UnmappedSpanAborts(t *testing.T) {
	e, _ := newEngine(t)

	// Span starts in global control and runs off its end.
	req := frame(testSlave, fnReadHolding, words(regmap.RegSystemReset, 32)...)
	res := exchange(e, req, 0)

	want := AppendCRC([]byte{testSlave, fnReadHolding | excFlag, byte(ExcIllegalDataAddress)})
	if !bytes.Equal(res, want) {
		t.Fatalf("response % x, want exception % x", res, want)
	}
}

func TestReadHolding_CountLimit(t *testing.T) {
	e, _ := newEngine(t)
	for _, count := range []uint16{0, 126} {
		req := frame(testSlave, fnReadHolding, words(0, count)...)
		res := exchange(e, req, 0)
		if len(res) < 3 || res[1] != fnReadHolding|excFlag || res[2] != byte(ExcIllegalDataValue) {
			t.Fatalf("count=%d: response % x, want IllegalDataValue exception", count, res)
		}
	}
}

func TestWriteSingle_Echo(t *testing.T) {
	e, store := newEngine(t)

	req := frame(testSlave, fnWriteSingle, words(regmap.RegGlobalEnable, 1)...)
	res := exchange(e, req, 0)
	if !bytes.Equal(res, req) {
		t.Fatalf("response % x, want request echo % x", res, req)
	}

	v, _ := store.Read(regmap.RegGlobalEnable)
	if v != 1 {
		t.Fatalf("global enable = %d, want 1", v)
	}
}

func TestWriteSingle_ReadOnly(t *testing.T) {
	e, store := newEngine(t)

	req := frame(testSlave, fnWriteSingle, words(regmap.RegActiveCount, 9)...)
	res := exchange(e, req, 0)

	want := AppendCRC([]byte{testSlave, fnWriteSingle | excFlag, byte(ExcIllegalDataAddress)})
	if !bytes.Equal(res, want) {
		t.Fatalf("response % x, want exception % x", res, want)
	}
	if v, _ := store.Read(regmap.RegActiveCount); v != 0 {
		t.Fatalf("read-only register mutated to %d", v)
	}
	if v, _ := store.Read(regmap.RegLastException); v != uint16(ExcIllegalDataAddress) {
		t.Fatalf("last exception register = %d, want %d", v, ExcIllegalDataAddress)
	}
}

func TestWriteMultiple(t *testing.T) {
	e, store := newEngine(t)
	base := regmap.UnitAddr(0, regmap.OffStartStop)

	body := append(words(base, 3), 6)
	body = append(body, words(1, 150, 1)...)
	req := frame(testSlave, fnWriteMultiple, body...)
	res := exchange(e, req, 0)

	want := AppendCRC(append([]byte{testSlave, fnWriteMultiple}, words(base, 3)...))
	if !bytes.Equal(res, want) {
		t.Fatalf("response % x, want % x", res, want)
	}

	if v, _ := store.Read(base); v != 1 {
		t.Fatalf("start_stop = %d, want 1", v)
	}
	if v, _ := store.Read(regmap.UnitAddr(0, regmap.OffAmplitude)); v != 100 {
		t.Fatalf("amplitude = %d, want 100 (clamped)", v)
	}
}

func TestWriteMultiple_AllOrNothing(t *testing.T) {
	e, store := newEngine(t)

	// Span starts at the last control register and crosses into the
	// read-only status sub-range.
	base := regmap.UnitAddr(1, regmap.UnitControlSize-1)
	body := append(words(base, 2), 4)
	body = append(body, words(7, 7)...)
	res := exchange(e, frame(testSlave, fnWriteMultiple, body...), 0)

	if len(res) < 3 || res[1] != fnWriteMultiple|excFlag || res[2] != byte(ExcIllegalDataAddress) {
		t.Fatalf("response % x, want IllegalDataAddress exception", res)
	}
	if v, _ := store.Read(base); v != 0 {
		t.Fatalf("partial write applied: reg = %d, want 0", v)
	}
}

func TestWriteMultiple_ByteCountMismatch(t *testing.T) {
	e, _ := newEngine(t)
	body := append(words(regmap.RegGlobalEnable, 2), 2) // byte count lies
	body = append(body, words(1)...)
	res := exchange(e, frame(testSlave, fnWriteMultiple, body...), 0)
	if len(res) < 3 || res[2] != byte(ExcIllegalDataValue) {
		t.Fatalf("response % x, want IllegalDataValue exception", res)
	}
}

func TestIllegalFunction(t *testing.T) {
	e, _ := newEngine(t)
	res := exchange(e, frame(testSlave, 0x01, words(0, 1)...), 0)

	want := AppendCRC([]byte{testSlave, 0x01 | excFlag, byte(ExcIllegalFunction)})
	if !bytes.Equal(res, want) {
		t.Fatalf("response % x, want % x", res, want)
	}
}

func TestCorruptFrame_DroppedAndCountedOnce(t *testing.T) {
	e, store := newEngine(t)

	req := frame(testSlave, fnReadHolding, words(0, 4)...)
	req[3] ^= 0x01 // flip one payload bit

	if res := exchange(e, req, 0); res != nil {
		t.Fatalf("corrupt frame answered: % x", res)
	}
	if got := commErrors(t, store); got != 1 {
		t.Fatalf("comm errors = %d, want exactly 1", got)
	}
	if e.Counters().CRCErrors != 1 {
		t.Fatalf("CRC counter = %d, want 1", e.Counters().CRCErrors)
	}
}

func TestShortFrame_Dropped(t *testing.T) {
	e, store := newEngine(t)
	if res := exchange(e, []byte{testSlave, fnReadHolding}, 0); res != nil {
		t.Fatalf("short frame answered: % x", res)
	}
	if got := commErrors(t, store); got != 1 {
		t.Fatalf("comm errors = %d, want 1", got)
	}
}

func TestOtherNode_SilentlyIgnored(t *testing.T) {
	e, store := newEngine(t)

	req := frame(otherSlave, fnReadHolding, words(0, 1)...)
	if res := exchange(e, req, 0); res != nil {
		t.Fatalf("answered another node's request: % x", res)
	}
	if e.Counters().NotForUs != 1 {
		t.Fatalf("NotForUs = %d, want 1", e.Counters().NotForUs)
	}
	// Multidrop traffic is not a comm error.
	if got := commErrors(t, store); got != 0 {
		t.Fatalf("comm errors = %d, want 0", got)
	}
}

func TestCommTimeout_SetsAndClearsFault(t *testing.T) {
	e, store := newEngine(t)

	e.Poll(0)
	e.Poll(testWindow + 1)
	if !e.CommFault() {
		t.Fatal("engine not in comm fault after window elapsed")
	}
	flags, _ := store.Read(regmap.RegSystemFlags)
	if flags&regmap.SysFlagCommFault == 0 {
		t.Fatalf("comm-fault flag not set, flags=0x%04x", flags)
	}
	if got := commErrors(t, store); got != 1 {
		t.Fatalf("comm errors = %d, want 1", got)
	}

	// A valid request recovers the link.
	req := frame(testSlave, fnReadHolding, words(0, 1)...)
	if res := exchange(e, req, testWindow+100); res == nil {
		t.Fatal("no response after recovery")
	}
	if e.CommFault() {
		t.Fatal("comm fault not cleared by valid frame")
	}
	flags, _ = store.Read(regmap.RegSystemFlags)
	if flags&regmap.SysFlagCommFault != 0 {
		t.Fatalf("comm-fault flag not cleared, flags=0x%04x", flags)
	}
}

func TestFrameAssembly_AcrossFeeds(t *testing.T) {
	e, _ := newEngine(t)

	req := frame(testSlave, fnReadHolding, words(regmap.RegSystemFlags, 1)...)
	e.Feed(req[:3], 0)
	e.Feed(req[3:], 2)

	if res := e.Poll(5); res != nil {
		t.Fatalf("frame dispatched before gap elapsed: % x", res)
	}
	res := e.Poll(2 + testGap)
	if res == nil {
		t.Fatal("no response after gap elapsed")
	}
	if ADU(res).Fn() != fnReadHolding {
		t.Fatalf("response fn = 0x%02x", ADU(res).Fn())
	}
}
