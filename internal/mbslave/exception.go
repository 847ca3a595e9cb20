// internal/mbslave/exception.go
package mbslave

// Exception is a Modbus exception code, sent as the second byte of an
// exception response (function code with excFlag set).
type Exception uint8

const (
	ExcIllegalFunction    Exception = 0x01
	ExcIllegalDataAddress Exception = 0x02
	ExcIllegalDataValue   Exception = 0x03
	ExcServerFailure      Exception = 0x04
)

func (e Exception) String() string {
	switch e {
	case ExcIllegalFunction:
		return "illegal function"
	case ExcIllegalDataAddress:
		return "illegal data address"
	case ExcIllegalDataValue:
		return "illegal data value"
	case ExcServerFailure:
		return "server failure"
	default:
		return "unknown exception"
	}
}

// Code exposes the exception as a uint16 for callers that extract
// error codes generically.
func (e Exception) Code() uint16 { return uint16(e) }

func (e Exception) Error() string { return "modbus exception: " + e.String() }
