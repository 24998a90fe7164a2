package fieldbus

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// simonvetterTransport is an alternate Transport implementation backed by github.com/simonvetter/modbus.
// Some sites front their battery with a serial-to-TCP gateway that the grid-x client doesn't get on with;
// for those the config selects this transport instead. Unlike gridxTransport, it reopens its own client
// before the next operation after any read or write error.
type simonvetterTransport struct {
	url    string
	unitID byte

	client          *modbus.ModbusClient
	shouldReconnect bool
}

func newSimonvetterTransport(host string, unitID byte) (*simonvetterTransport, error) {
	t := &simonvetterTransport{
		url:    fmt.Sprintf("tcp://%s", host),
		unitID: unitID,
	}

	if err := t.connect(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *simonvetterTransport) connect() error {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     t.url,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create modbus client: %w", err)
	}

	err = client.Open()
	if err != nil {
		return fmt.Errorf("open modbus client: %w", err)
	}

	client.SetUnitId(t.unitID)

	t.client = client
	t.shouldReconnect = false

	return nil
}

func (t *simonvetterTransport) reconnectIfNecessary() error {
	if !t.shouldReconnect {
		return nil
	}

	t.client.Close() // ignore errors, we're reconnecting regardless

	return t.connect()
}

func (t *simonvetterTransport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if err := t.reconnectIfNecessary(); err != nil {
		return nil, fmt.Errorf("%w: reconnect: %v", ErrTransport, err)
	}

	regs, err := t.client.ReadRegisters(address, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		t.shouldReconnect = true
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	buf := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, r)
		buf = append(buf, b...)
	}
	return buf, nil
}

func (t *simonvetterTransport) WriteMultipleRegisters(address uint16, values []uint16) error {
	if err := t.reconnectIfNecessary(); err != nil {
		return fmt.Errorf("%w: reconnect: %v", ErrTransport, err)
	}

	err := t.client.WriteRegisters(address, values)
	if err != nil {
		t.shouldReconnect = true
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (t *simonvetterTransport) Close() error {
	return t.client.Close()
}
