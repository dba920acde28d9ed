package device

import "fmt"

// Limits for the fixed-size tables kept by the engine.
const (
	// MaxStrings is the size of the device string table. Index 0 holds the
	// language IDs, so MaxStrings-1 IDs can be allocated.
	MaxStrings = 16

	// MaxInterfacesPerConfiguration is the maximum number of interfaces in
	// one configuration.
	MaxInterfacesPerConfiguration = 16

	// MaxEndpointsPerInterface is the maximum number of endpoints per interface.
	MaxEndpointsPerInterface = 4

	// MaxConfigurations is the maximum number of configurations per device.
	MaxConfigurations = 4

	// MaxEndpointNumber is the highest endpoint number a controller can
	// expose in one direction.
	MaxEndpointNumber = 15

	// MaxConfigurationSize bounds the serialized configuration descriptor.
	MaxConfigurationSize = 1024
)

// Device class triple for composite devices using interface association
// descriptors (USB IAD ECN).
const (
	CompositeDeviceClass    = ClassMisc
	CompositeDeviceSubClass = 0x02
	CompositeDeviceProtocol = 0x01
)

// State is the publication state of a device.
type State uint8

// Device publication states.
const (
	StateIdle      State = iota // No driver bound
	StateBound                  // Driver bound, configuration built, not visible
	StatePublished              // Attached to the controller and visible to hosts
)

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StatePublished:
		return "published"
	default:
		return fmt.Sprintf("unknown state (%d)", s)
	}
}
