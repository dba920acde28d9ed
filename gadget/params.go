package gadget

import (
	"slices"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/class/msc"
)

// Default device identification. The IDs are the ones assigned to the
// Linux File-backed Storage Gadget, which composite ACM/MS gadgets reuse.
const (
	DefaultVendorID  = 0x0525
	DefaultProductID = 0xA4A5
	DefaultBCDDevice = 0x0100

	DefaultManufacturer = "softgadget"
)

// Configuration labels.
const (
	LabelHIDMassStorage    = "Composite Gadget (HID + MS)"
	LabelHIDACMMassStorage = "Composite Gadget (HID + ACM + MS)"
)

// ConfigValue is the value of the single composite configuration.
const ConfigValue = 1

// Params holds the module parameters. They are read-only once a
// composite has been bound.
type Params struct {
	VendorID  uint16
	ProductID uint16
	BCDDevice uint16

	Manufacturer string
	Product      string
	Serial       string

	NumBuffers     int
	Stall          bool
	LUNs           []msc.LUNConfig
	InquiryVendor  string
	InquiryProduct string

	EnableACM   bool
	RequireHID  bool
	SelfPowered bool
}

// DefaultParams returns the parameters used when none are given: one
// removable LUN with no medium, double buffering, stalling enabled.
func DefaultParams() Params {
	return Params{
		VendorID:     DefaultVendorID,
		ProductID:    DefaultProductID,
		BCDDevice:    DefaultBCDDevice,
		Manufacturer: DefaultManufacturer,
		Product:      LabelHIDMassStorage,
		NumBuffers:   msc.MinBuffers,
		Stall:        true,
		LUNs:         []msc.LUNConfig{{Removable: true}},
		RequireHID:   true,
		SelfPowered:  true,
	}
}

// Label returns the configuration label for the enabled functions.
func (p *Params) Label() string {
	if p.EnableACM {
		return LabelHIDACMMassStorage
	}
	return LabelHIDMassStorage
}

// DeviceDescriptor returns a device descriptor carrying the parameter IDs.
func (p *Params) DeviceDescriptor() *device.DeviceDescriptor {
	return device.NewDeviceDescriptor(p.VendorID, p.ProductID, p.BCDDevice)
}

// MassStorageConfig is the mass-storage part of the parameters, in the
// form the factory consumes.
type MassStorageConfig struct {
	NumBuffers int
	CanStall   bool
	LUNs       []msc.LUNConfig
	Vendor     string
	Product    string
}

// NewMassStorageConfig extracts the mass-storage configuration from p.
func NewMassStorageConfig(p Params) MassStorageConfig {
	return MassStorageConfig{
		NumBuffers: p.NumBuffers,
		CanStall:   p.Stall,
		LUNs:       slices.Clone(p.LUNs),
		Vendor:     p.InquiryVendor,
		Product:    p.InquiryProduct,
	}
}
