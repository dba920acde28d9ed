package gadget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ardnew/softgadget/device/class/msc"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()

	assert.Equal(t, uint16(0x0525), p.VendorID)
	assert.Equal(t, uint16(0xA4A5), p.ProductID)
	assert.Equal(t, 2, p.NumBuffers)
	assert.True(t, p.Stall)
	assert.True(t, p.RequireHID)
	assert.True(t, p.SelfPowered)
	assert.False(t, p.EnableACM)
	assert.Equal(t, []msc.LUNConfig{{Removable: true}}, p.LUNs)
	assert.Equal(t, LabelHIDMassStorage, p.Label())

	p.EnableACM = true
	assert.Equal(t, LabelHIDACMMassStorage, p.Label())

	desc := p.DeviceDescriptor()
	assert.Equal(t, p.VendorID, desc.VendorID)
	assert.Equal(t, p.ProductID, desc.ProductID)
	assert.Equal(t, p.BCDDevice, desc.DeviceVersion)
}

func TestNewMassStorageConfig(t *testing.T) {
	p := DefaultParams()
	p.NumBuffers = 4
	p.Stall = false
	p.InquiryVendor = "Acme"
	p.InquiryProduct = "Disk"

	cfg := NewMassStorageConfig(p)
	assert.Equal(t, 4, cfg.NumBuffers)
	assert.False(t, cfg.CanStall)
	assert.Equal(t, "Acme", cfg.Vendor)
	assert.Equal(t, "Disk", cfg.Product)

	cfg.LUNs[0].ReadOnly = true
	assert.False(t, p.LUNs[0].ReadOnly)
}
