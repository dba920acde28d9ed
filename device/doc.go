// Package device implements the enumeration engine of a composite USB
// gadget.
//
// It is platform-agnostic and publishes through the [hal.Controller]
// interface defined in the [github.com/ardnew/softgadget/device/hal]
// package. The engine never runs a control pipe; it builds configurations,
// hands out function handles and serializes the descriptors a controller
// presents during enumeration.
//
// # Architecture
//
// The engine is organized into several layers:
//
//   - [Device] owns the function-driver table, string table, OTG descriptor
//     and configurations, and publishes the bound result
//   - [Configuration] hands out interface and endpoint numbers to the
//     functions attached to it
//   - [Interface] and [Endpoint] describe what a function claimed
//   - [FunctionInstance] and [Function] are implemented by function drivers
//   - [Driver] is implemented by the gadget driver that assembles the device
//
// # Handle Lifecycle
//
// Every handle has exactly one owner and is returned exactly once:
//
//	fi, _ := dev.GetFunctionInstance("hid")   // instance
//	f, _ := dev.GetFunction(fi)               // function
//	_ = cfg.AddFunction(f)                    // attached
//	_ = cfg.RemoveFunction(f)                 // detached
//	_ = dev.PutFunction(f)
//	_ = dev.PutFunctionInstance(fi)
//
// Returning a handle twice fails with pkg.ErrAlreadyReleased.
// [Device.LiveInstances] and [Device.LiveFunctions] report what is still
// outstanding.
//
// # Publication
//
// [Device.Probe] calls the driver's Bind, which registers configurations
// with [Device.AddConfig]. Only a successful bind is published through the
// controller. [Device.Unregister] withdraws the device and unbinds the
// driver.
//
//	Idle → Bound → Published → Idle
//
// Function drivers are available in:
//
//   - [github.com/ardnew/softgadget/device/class/hid] - Human Interface Device
//   - [github.com/ardnew/softgadget/device/class/cdc] - Communications Device Class (CDC-ACM)
//   - [github.com/ardnew/softgadget/device/class/msc] - Mass Storage Class
//
// # Example
//
//	dev := device.NewDevice(device.NewDeviceDescriptor(0x0525, 0xA4A5, 0x0100),
//	    spool.New("/tmp/usb-bus"))
//	hid.Register(dev)
//	if err := dev.Probe(ctx, drv); err != nil {
//	    return err
//	}
//	defer dev.Unregister()
package device
