// Package cdc implements the CDC-ACM (Abstract Control Model) function,
// the standard class for USB serial adapters and virtual COM ports.
//
// An ACM function claims two interfaces, grouped by an interface
// association descriptor:
//
//   - Control interface (Communications Class): carries the header, call
//     management, ACM and union functional descriptors and an interrupt
//     IN endpoint for serial state notifications
//   - Data interface (Data Class): a bulk IN and bulk OUT endpoint
//
// Only the function's resources are modelled here. Serial data transfer
// and class requests such as SET_LINE_CODING are handled elsewhere.
//
// # Usage
//
//	cdc.Register(dev)
//	fi, _ := dev.GetFunctionInstance(cdc.Kind)
//	fi.(*cdc.Instance).SetLineCoding(cdc.LineCoding{DTERate: 115200, DataBits: 8})
//	f, _ := dev.GetFunction(fi)
//	config.AddFunction(f)
package cdc
