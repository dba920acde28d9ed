package device

import "fmt"

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// Endpoint is a data endpoint claimed by a function inside a configuration.
// Addresses are assigned by the configuration when the endpoint is
// allocated; functions never pick their own numbers.
type Endpoint struct {
	Address       uint8  // Endpoint address including direction
	Attributes    uint8  // Transfer type
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval (interrupt/isochronous)
}

// Number returns the endpoint number (1-15).
func (e *Endpoint) Number() uint8 {
	return e.Address & 0x0F
}

// Direction returns EndpointDirectionIn or EndpointDirectionOut.
func (e *Endpoint) Direction() uint8 {
	return e.Address & 0x80
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *Endpoint) IsIn() bool {
	return e.Direction() == EndpointDirectionIn
}

// TransferType returns the transfer type bits.
func (e *Endpoint) TransferType() uint8 {
	return e.Attributes & 0x03
}

// Descriptor returns the endpoint descriptor.
func (e *Endpoint) Descriptor() *EndpointDescriptor {
	return &EndpointDescriptor{
		EndpointAddress: e.Address,
		Attributes:      e.Attributes,
		MaxPacketSize:   e.MaxPacketSize,
		Interval:        e.Interval,
	}
}

// String returns a short description such as "ep1in-interrupt".
func (e *Endpoint) String() string {
	dir := "out"
	if e.IsIn() {
		dir = "in"
	}
	return fmt.Sprintf("ep%d%s-%s", e.Number(), dir, TransferTypeName(e.TransferType()))
}

// TransferTypeName returns the name of a transfer type.
func TransferTypeName(t uint8) string {
	switch t & 0x03 {
	case EndpointTypeControl:
		return "control"
	case EndpointTypeIsochronous:
		return "isochronous"
	case EndpointTypeBulk:
		return "bulk"
	default:
		return "interrupt"
	}
}
