package hal

import (
	"context"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// Image is the complete descriptor set of a bound device, as the
// controller presents it to a host during enumeration.
type Image struct {
	// Device is the serialized 18-byte device descriptor.
	Device []byte

	// Configurations holds one serialized configuration descriptor set per
	// configuration, in the order the configurations were added.
	Configurations [][]byte

	// Strings is indexed by string ID. Index 0 is the language ID
	// descriptor; unallocated IDs are nil.
	Strings [][]byte

	// OTG is the serialized OTG descriptor, or nil when the device does
	// not advertise dual-role capability.
	OTG []byte
}

// Controller is the interface a USB device controller must implement.
//
// The engine only needs the controller at two points: while building a
// configuration (to learn its capabilities) and when publishing the bound
// device. Data transfer is outside this interface.
type Controller interface {
	// Name returns a short controller identifier used in logs.
	Name() string

	// IsOTG reports whether the controller is dual-role capable.
	IsOTG() bool

	// MaxSpeed returns the highest speed the controller supports.
	MaxSpeed() Speed

	// Endpoints returns how many endpoint numbers (excluding EP0) the
	// controller provides in each direction.
	Endpoints() int

	// Attach makes the device visible to hosts using the given image.
	// It fails if the controller is already attached.
	Attach(ctx context.Context, img *Image) error

	// Detach removes the device from the bus. Detaching a controller that
	// is not attached returns pkg.ErrNotConnected.
	Detach() error
}
