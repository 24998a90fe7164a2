package fieldbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/writeguard"
)

// reconnectBackoff is the fixed delay the Driver waits before retrying a transport operation once after a
// failure, per the field bus's "single reconnect with a fixed short backoff" contract.
const reconnectBackoff = 250 * time.Millisecond

// TransportKind selects which Modbus client library backs a Driver's connection.
type TransportKind string

const (
	TransportGridx       TransportKind = "gridx"
	TransportSimonvetter TransportKind = "simonvetter"
)

// Driver is the typed, by-name read/write surface over a single field device. It owns the register map
// lookup, the raw transport, and a Write Guard; callers never see raw addresses or Modbus error codes.
type Driver struct {
	host   string
	unitID byte
	kind   TransportKind

	regs  *registermap.Map
	guard *writeguard.Guard
	log   *slog.Logger

	mu        sync.Mutex
	transport Transport

	dialFunc func() (Transport, error)
}

// NewDriver constructs a Driver bound to host:port/unitID. The transport is not opened until Connect is
// called.
func NewDriver(host string, unitID byte, kind TransportKind, regs *registermap.Map, guard *writeguard.Guard, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	d := &Driver{
		host:   host,
		unitID: unitID,
		kind:   kind,
		regs:   regs,
		guard:  guard,
		log:    log.With("host", host, "unit_id", unitID),
	}
	d.dialFunc = d.dialReal
	return d
}

// NewDriverWithTransport builds a Driver around an already-constructed Transport, bypassing host dialing
// entirely. Tests use this to drive a Driver against a MockTransport.
func NewDriverWithTransport(t Transport, regs *registermap.Map, guard *writeguard.Guard, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	d := &Driver{
		regs:      regs,
		guard:     guard,
		log:       log,
		transport: t,
	}
	d.dialFunc = func() (Transport, error) { return t, nil }
	return d
}

// Connect opens the underlying transport. It is idempotent: calling it again while already connected is a
// no-op.
func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport != nil {
		return nil
	}

	t, err := d.dialFunc()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	d.transport = t
	return nil
}

func (d *Driver) dialReal() (Transport, error) {
	switch d.kind {
	case TransportSimonvetter:
		return newSimonvetterTransport(d.host, d.unitID)
	default:
		return newGridxTransport(d.host, d.unitID)
	}
}

// Close releases the transport. Safe to call multiple times and on a Driver that was never connected.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport == nil {
		return nil
	}
	err := d.transport.Close()
	d.transport = nil
	return err
}

// ReadByName fetches the named register, applying sign extension and scaling, and returns its physical
// value. On a transport failure it attempts a single reconnect with a fixed backoff before giving up.
func (d *Driver) ReadByName(name string) (float64, error) {
	desc, err := d.regs.Lookup(name)
	if err != nil {
		return 0, err
	}

	raw, err := d.readWithReconnect(desc.Address, desc.WordCount)
	if err != nil {
		return 0, err
	}

	return decode(desc, raw)
}

func (d *Driver) readWithReconnect(address, wordCount uint16) ([]byte, error) {
	d.mu.Lock()
	t := d.transport
	d.mu.Unlock()

	if t == nil {
		return nil, fmt.Errorf("%w: not connected", ErrTransport)
	}

	raw, err := t.ReadHoldingRegisters(address, wordCount)
	if err == nil {
		return raw, nil
	}

	d.log.Warn("field bus read failed, attempting reconnect", "address", address, "error", err)
	time.Sleep(reconnectBackoff)

	if rerr := d.reconnect(); rerr != nil {
		return nil, fmt.Errorf("%w: reconnect after read failure: %v (original: %v)", ErrTransport, rerr, err)
	}

	d.mu.Lock()
	t = d.transport
	d.mu.Unlock()

	raw, err = t.ReadHoldingRegisters(address, wordCount)
	if err != nil {
		return nil, fmt.Errorf("%w: after reconnect: %v", ErrTransport, err)
	}
	return raw, nil
}

// WriteByName scales and packs value for the named register, submits it through the Write Guard, and
// emits it on the bus if accepted. A guard rejection is returned as-is (wrapping writeguard.ErrRejected)
// so the caller can distinguish "suppressed" from "failed".
func (d *Driver) WriteByName(name string, value float64) error {
	desc, err := d.regs.Lookup(name)
	if err != nil {
		return err
	}
	if !desc.Writable() {
		return fmt.Errorf("register %q is not writable", name)
	}

	if d.guard != nil {
		if _, gerr := d.guard.Submit(name, value); gerr != nil {
			return gerr
		}
	}

	raw, err := encode(desc, value)
	if err != nil {
		return err
	}

	if err := d.writeWithReconnect(desc.Address, desc.WordCount, raw); err != nil {
		if d.guard != nil {
			d.guard.RecordError()
		}
		return err
	}
	return nil
}

func (d *Driver) writeWithReconnect(address, wordCount uint16, raw []byte) error {
	values := bytesToRegisters(raw, wordCount)

	d.mu.Lock()
	t := d.transport
	d.mu.Unlock()

	if t == nil {
		return fmt.Errorf("%w: not connected", ErrTransport)
	}

	err := t.WriteMultipleRegisters(address, values)
	if err == nil {
		return nil
	}

	d.log.Warn("field bus write failed, attempting reconnect", "address", address, "error", err)
	time.Sleep(reconnectBackoff)

	if rerr := d.reconnect(); rerr != nil {
		return fmt.Errorf("%w: reconnect after write failure: %v (original: %v)", ErrTransport, rerr, err)
	}

	d.mu.Lock()
	t = d.transport
	d.mu.Unlock()

	if err := t.WriteMultipleRegisters(address, values); err != nil {
		return fmt.Errorf("%w: after reconnect: %v", ErrTransport, err)
	}
	return nil
}

func (d *Driver) reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport != nil {
		_ = d.transport.Close()
		d.transport = nil
	}

	t, err := d.dialFunc()
	if err != nil {
		return err
	}
	d.transport = t
	return nil
}

func bytesToRegisters(raw []byte, wordCount uint16) []uint16 {
	values := make([]uint16, wordCount)
	for i := range values {
		values[i] = uint16(raw[i*2])<<8 | uint16(raw[i*2+1])
	}
	return values
}
