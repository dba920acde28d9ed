// Package spool implements a directory-spool controller for the gadget engine.
//
// Instead of driving a hardware UDC, the controller writes the published
// descriptor image to the filesystem where a host-side test harness (or a
// human) can inspect it. It is primarily intended for testing and for
// checking what a composite configuration looks like before it is loaded
// onto real hardware.
//
// # Layout
//
// Each attach creates a unique subdirectory under the bus directory:
//
//	/tmp/usb-bus/                    # Bus directory (shared with host)
//	└── gadget-{uuid}/               # Gadget subdirectory (unique per attach)
//	    ├── connection               # Connection signal (0x01 attached, 0x00 detached)
//	    ├── device.desc              # Device descriptor
//	    ├── config-1.desc            # Full configuration descriptor set
//	    ├── otg.desc                 # OTG descriptor (dual-role only)
//	    └── strings/
//	        ├── 00.desc              # Language IDs
//	        ├── 01.desc              # Manufacturer
//	        └── ...
//
// # Usage
//
//	ctrl := spool.New("/tmp/usb-bus", spool.WithOTG(true))
//	dev := device.NewDevice(desc, ctrl)
//	if err := dev.Probe(ctx, drv); err != nil {
//	    return err
//	}
//	fmt.Printf("Gadget directory: %s\n", ctrl.GadgetDir())
package spool
