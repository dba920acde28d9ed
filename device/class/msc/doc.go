// Package msc implements the USB Mass Storage function using Bulk-Only
// Transport with the SCSI transparent command set.
//
// A mass-storage [Instance] owns a [Common], which holds the state shared
// by every function produced from it:
//
//   - the buffer pipeline (between MinBuffers and MaxBuffers buffers)
//   - the stall policy for bulk endpoints
//   - up to MaxLUNs logical units, each backed by a [Storage]
//   - the INQUIRY vendor and product strings
//
// Logical units are described by [LUNConfig]. A unit with a backing file
// is served from a memory mapping of that file ([MmapStorage]). A unit
// without one either gets an in-memory medium of the configured size or,
// when removable, starts with no medium inserted.
//
// # Usage
//
//	fi, _ := dev.GetFunctionInstance(msc.Kind)
//	common := fi.(*msc.Instance).Common()
//	common.SetNumBuffers(2)
//	common.CreateLUNs([]msc.LUNConfig{{Filename: "disk.img", Removable: true}})
//	common.SetInquiryString("", "")
//	f, _ := dev.GetFunction(fi)
//
// Binding the function allocates one interface and a bulk endpoint pair
// sized for the controller's maximum speed.
package msc
