package fieldbus

import (
	"errors"
	"fmt"
)

// ErrTransport indicates the underlying Modbus/TCP connection failed (socket error, refused connection).
var ErrTransport = errors.New("field-bus transport error")

// ErrTimeout indicates a read or write did not complete within its deadline.
var ErrTimeout = errors.New("field-bus timeout")

// DeviceException wraps a Modbus exception code returned by the inverter itself (as opposed to a
// transport-level failure).
type DeviceException struct {
	Code byte
}

func (e *DeviceException) Error() string {
	return fmt.Sprintf("device exception: code %d", e.Code)
}
