// Package hal defines the controller abstraction used by the gadget engine.
//
// The engine builds configurations and publishes a bound device through the
// [Controller] interface. A controller reports its capabilities (dual-role
// support, maximum speed, endpoint numbers per direction) and accepts a
// descriptor [Image] when the device is published.
//
// # Implementing a Controller
//
// To implement a controller for a new platform:
//
//  1. Create a type that implements all [Controller] methods
//  2. Report the endpoint budget the hardware provides
//  3. Expose the image to the host side in Attach
//  4. Withdraw it again in Detach
//
// # Example
//
//	type MyController struct {
//	    // Platform-specific fields
//	}
//
//	func (c *MyController) Attach(ctx context.Context, img *hal.Image) error {
//	    // Load descriptors into the UDC and enable the pull-up
//	    return nil
//	}
//
//	// ... implement remaining Controller methods
//
// A directory-spool controller for testing and inspection is available in
// [github.com/ardnew/softgadget/device/hal/spool].
package hal
