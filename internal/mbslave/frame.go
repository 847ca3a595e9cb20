// internal/mbslave/frame.go
package mbslave

import "github.com/npat-efault/crc16"

// Serial ADU geometry (bytes).
const (
	// MinADU is the smallest valid frame: node, function, CRC16.
	MinADU = 4
	// MaxADU is the largest RTU frame on the wire.
	MaxADU = 256
	// headSz is the node-id header, crcSz the CRC trailer.
	headSz = 1
	crcSz  = 2
)

// excFlag marks a response function code as an exception.
const excFlag byte = 1 << 7

// ADU is a byte slice holding a Modbus serial ADU.
type ADU []byte

// Node returns the addressed node id.
func (a ADU) Node() uint8 { return a[0] }

// Fn returns the function code.
func (a ADU) Fn() uint8 { return a[headSz] }

// PDU returns the function code and payload, without node id and CRC.
func (a ADU) PDU() []byte { return a[headSz : len(a)-crcSz] }

// CRC returns the CRC stored in the trailer, which travels LSB first.
func (a ADU) CRC() uint16 {
	l := len(a)
	return uint16(a[l-2]) | uint16(a[l-1])<<8
}

// CheckCRC verifies the stored CRC against CRC16/MODBUS computed over
// the rest of the frame (init 0xFFFF, reflected poly 0xA001).
func (a ADU) CheckCRC() bool {
	return a.CRC() == crc16.Checksum(crc16.Modbus, a[:len(a)-crcSz])
}

// AppendCRC appends the CRC16/MODBUS trailer to b, LSB first, and
// returns the completed ADU.
func AppendCRC(b []byte) ADU {
	crc := crc16.Checksum(crc16.Modbus, b)
	return append(b, byte(crc), byte(crc>>8))
}

// u16 reads a big-endian word from b (Modbus payload byte order).
func u16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// putU16 appends a big-endian word to b.
func putU16(b []byte, v uint16) []byte { return append(b, byte(v>>8), byte(v)) }
