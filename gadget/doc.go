// Package gadget assembles a composite USB gadget out of independent
// functions and manages their lifecycle as one unit.
//
// The composite carries zero or more HID functions, an optional CDC-ACM
// function and a mass-storage function, all in a single self-powered
// configuration. HID functions are described up front by
// [FunctionDescriptor] values added to a [Registry]; registration order is
// attach order.
//
// # Lifecycle
//
// A [Composite] is a [device.Driver]. When the device probes it, the
// [Assembler] runs through these states:
//
//	Empty -> FunctionsCreated -> DescriptorsConfigured -> FunctionsAttached -> Published
//
// Every resource acquired on the way (function instances, storage buffers
// and LUNs, device string IDs, the OTG descriptor, the configuration)
// pushes its release onto a [Rollback]. A failure at any point unwinds
// that stack, so a failed bind leaves nothing allocated and reports the
// stage that failed (pkg.ErrInstanceCreation, pkg.ErrStorageInit,
// pkg.ErrDescriptorAllocation, pkg.ErrAttach) wrapped around its cause.
// On success the stack is kept and Unbind replays it, releasing in
// exactly the reverse order of acquisition.
//
// # Usage
//
//	registry := gadget.NewRegistry()
//	kb, _ := gadget.Preset(gadget.PresetKeyboard)
//	registry.Register(kb)
//	registry.Close()
//
//	params := gadget.DefaultParams()
//	dev := device.NewDevice(params.DeviceDescriptor(), ctrl)
//	gadget.RegisterFunctions(dev)
//
//	composite := gadget.New(registry, params)
//	if err := dev.Probe(ctx, composite); err != nil {
//	    return err
//	}
//	defer dev.Unregister()
package gadget
