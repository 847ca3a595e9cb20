// internal/mbslave/counters.go
package mbslave

// Counters track bus-level events, in the spirit of the Modbus
// serial-line diagnostic counters. The engine is single-threaded; the
// struct is copied out through Engine.Counters for observers.
type Counters struct {
	// BusMessages counts every complete frame seen on the bus.
	BusMessages uint64
	// CRCErrors counts frames dropped for a bad CRC or short length.
	CRCErrors uint64
	// NotForUs counts valid frames addressed to another node.
	NotForUs uint64
	// Requests counts valid frames addressed to this node.
	Requests uint64
	// Exceptions counts exception responses sent.
	Exceptions uint64
	// Overruns counts receive-buffer overflows.
	Overruns uint64
	// Timeouts counts entries into the TIMEOUT state.
	Timeouts uint64
}
