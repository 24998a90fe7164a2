package fieldbus

import (
	"fmt"
	"time"

	"github.com/grid-x/modbus"
)

const gridxTimeout = 2 * time.Second

// gridxTransport is the primary Transport implementation, backed by github.com/grid-x/modbus. This is
// the library the rest of the pack reaches for when talking Modbus/TCP to real field devices.
type gridxTransport struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// newGridxTransport dials the given host:port and unit (slave) id.
func newGridxTransport(host string, unitID byte) (*gridxTransport, error) {
	handler := modbus.NewTCPClientHandler(host)
	handler.Timeout = gridxTimeout
	handler.SlaveID = unitID

	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &gridxTransport{
		handler: handler,
		client:  modbus.NewClient(handler),
	}, nil
}

func (t *gridxTransport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	b, err := t.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, translateGridxErr(err)
	}
	return b, nil
}

func (t *gridxTransport) WriteMultipleRegisters(address uint16, values []uint16) error {
	_, err := t.client.WriteMultipleRegisters(address, uint16(len(values)), registersToBytes(values))
	if err != nil {
		return translateGridxErr(err)
	}
	return nil
}

func (t *gridxTransport) Close() error {
	return t.handler.Close()
}

func registersToBytes(values []uint16) []byte {
	buf := make([]byte, 0, len(values)*2)
	for _, v := range values {
		buf = append(buf, byte(v>>8), byte(v))
	}
	return buf
}

// translateGridxErr maps the grid-x client's errors onto the package's own error taxonomy so callers
// never need to know which transport library raised them.
func translateGridxErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
