package device

// FunctionInstance is a configured but not yet active function of a given
// kind. Instances are obtained from [Device.GetFunctionInstance] and
// returned with [Device.PutFunctionInstance].
type FunctionInstance interface {
	// Kind returns the function kind the instance was created for
	// (e.g. "hid", "mass_storage", "acm").
	Kind() string

	// NewFunction produces an activatable function from the instance.
	NewFunction() (Function, error)

	// Free releases every resource the instance owns. It is called once,
	// by the engine, when the instance is returned.
	Free() error
}

// Function is an activatable function that can be attached to a
// configuration. Functions are obtained from [Device.GetFunction] and
// returned with [Device.PutFunction].
type Function interface {
	// Name returns a short function name used in logs.
	Name() string

	// Bind allocates interfaces and endpoints for the function in c.
	// On error the engine releases whatever the function allocated.
	Bind(c *Configuration) error

	// Unbind is called when the function is removed from c.
	Unbind(c *Configuration)

	// Free releases the function. It is called once, by the engine.
	Free()
}

// FunctionAllocator creates a new, unconfigured instance of one function kind.
type FunctionAllocator func() (FunctionInstance, error)

// ConfigFunc builds or tears down the functions of a configuration.
type ConfigFunc func(c *Configuration) error

// Driver is a gadget driver bound to a device. The engine calls Bind
// before publishing and Unbind after the device is withdrawn.
type Driver interface {
	// Name returns the driver name.
	Name() string

	// Bind builds the device's configurations. On error the driver must
	// have released everything it acquired.
	Bind(d *Device) error

	// Unbind releases everything Bind acquired.
	Unbind(d *Device) error
}
