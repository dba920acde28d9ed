package gadget

import (
	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/pkg"
)

// DriverName is the name the composite driver registers under.
const DriverName = "g_acm_ms"

// Composite is the composite gadget driver. The device calls Bind when
// the driver is probed and Unbind when it is unregistered or publishing
// fails.
type Composite struct {
	assembler *Assembler
}

var _ device.Driver = (*Composite)(nil)

// New creates a composite driver for the functions in registry.
func New(registry *Registry, params Params) *Composite {
	return &Composite{assembler: NewAssembler(registry, params)}
}

// Name returns DriverName.
func (c *Composite) Name() string {
	return DriverName
}

// Bind assembles the composite configuration on dev. A failed bind
// leaves nothing allocated.
func (c *Composite) Bind(dev *device.Device) error {
	if err := c.assembler.Assemble(dev); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentComposite, "gadget bound",
		"driver", DriverName,
		"vendor", dev.Descriptor.VendorID,
		"product", dev.Descriptor.ProductID)
	return nil
}

// Unbind releases everything Bind acquired. Calling it again, or after a
// failed Bind, does nothing.
func (c *Composite) Unbind(*device.Device) error {
	if c.assembler.State() == StateEmpty {
		return nil
	}
	if err := c.assembler.Teardown(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentComposite, "gadget unbound", "driver", DriverName)
	return nil
}

// Assembler returns the driver's assembler.
func (c *Composite) Assembler() *Assembler {
	return c.assembler
}
