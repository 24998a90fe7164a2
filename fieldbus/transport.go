package fieldbus

// Transport is the narrow interface the Driver needs from a raw Modbus client. It hides whichever
// open-source library actually speaks the wire protocol (grid-x/modbus or simonvetter/modbus below) so the
// Driver's reconnect and retry logic is written once, against an interface, rather than twice.
type Transport interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address uint16, values []uint16) error
	Close() error
}
