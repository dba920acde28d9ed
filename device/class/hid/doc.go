// Package hid implements the USB Human Interface Device (HID) function
// driver for the gadget engine.
//
// # Architecture
//
// A HID function consists of a single HID interface with:
//
//   - An Interrupt IN endpoint for input reports
//   - An Interrupt OUT endpoint for output reports
//   - The HID class descriptor advertising the report descriptor length
//
// Endpoint numbers are assigned by the configuration when the function is
// bound; the function only states direction, type and packet size.
//
// # Usage
//
//	hid.Register(dev)
//
//	fi, _ := dev.GetFunctionInstance(hid.Kind)
//	fi.(*hid.Instance).SetOptions(hid.Options{
//	    Protocol:     hid.ProtocolKeyboard,
//	    ReportLength: hid.BootKeyboardReportLength,
//	    ReportDesc:   hid.BootKeyboardReportDescriptor,
//	})
//	f, _ := dev.GetFunction(fi)
//	err := cfg.AddFunction(f)
//
// Options can no longer be changed once the instance has produced a live
// function.
//
// # Report Descriptors
//
// The package includes common report descriptors:
//
//   - BootKeyboardReportDescriptor: 63-byte boot keyboard, 8-byte reports
//   - MouseReportDescriptor: Standard 4-byte mouse report (3 buttons, X/Y/wheel)
package hid
