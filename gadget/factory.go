package gadget

import (
	"errors"
	"fmt"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/class/cdc"
	"github.com/ardnew/softgadget/device/class/hid"
	"github.com/ardnew/softgadget/device/class/msc"
	"github.com/ardnew/softgadget/pkg"
)

// RegisterFunctions makes the HID, mass-storage and ACM function kinds
// available on dev.
func RegisterFunctions(dev *device.Device) error {
	return errors.Join(
		hid.Register(dev),
		msc.Register(dev),
		cdc.Register(dev),
	)
}

// hidInstance is implemented by HID function instances.
type hidInstance interface {
	SetOptions(opts hid.Options) error
}

// storageInstance is implemented by mass-storage function instances.
type storageInstance interface {
	Common() *msc.Common
	SetNumBuffers(n int) error
	FreeBuffers()
	SetCanStall(canStall bool)
	CreateLUNs(cfgs []msc.LUNConfig) error
	RemoveLUNs() error
	SetInquiryString(vendor, product string)
}

// Factory creates and configures function instances on a device.
type Factory struct {
	dev *device.Device
}

// NewFactory creates a factory for dev.
func NewFactory(dev *device.Device) *Factory {
	return &Factory{dev: dev}
}

// CreateInstance asks the device for an instance of the named kind.
//
// Returns pkg.ErrCapabilityUnavailable if the kind is not registered.
func (f *Factory) CreateInstance(kind string) (device.FunctionInstance, error) {
	fi, err := f.dev.GetFunctionInstance(kind)
	if err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentFactory, "instance created", "kind", kind)
	return fi, nil
}

// ConfigureHID copies desc into a HID instance.
func (f *Factory) ConfigureHID(fi device.FunctionInstance, desc FunctionDescriptor) error {
	inst, ok := fi.(hidInstance)
	if !ok {
		return fmt.Errorf("%w: %s instance is not HID", pkg.ErrInvalidConfig, fi.Kind())
	}
	return inst.SetOptions(desc.options())
}

// ConfigureMassStorage applies cfg to a mass-storage instance. Every
// resource acquired along the way pushes its release onto rb, so a
// failure part way through leaves rb able to undo exactly what was done.
func (f *Factory) ConfigureMassStorage(fi device.FunctionInstance, cfg MassStorageConfig, rb *Rollback) error {
	inst, ok := fi.(storageInstance)
	if !ok {
		return fmt.Errorf("%w: %s instance is not mass storage", pkg.ErrInvalidConfig, fi.Kind())
	}
	if err := inst.SetNumBuffers(cfg.NumBuffers); err != nil {
		return err
	}
	rb.Push("free storage buffers", func() error {
		inst.FreeBuffers()
		return nil
	})

	inst.SetCanStall(cfg.CanStall)

	if err := inst.CreateLUNs(cfg.LUNs); err != nil {
		return err
	}
	rb.Push("remove LUNs", inst.RemoveLUNs)

	inst.SetInquiryString(cfg.Vendor, cfg.Product)

	pkg.LogDebug(pkg.ComponentFactory, "mass storage configured",
		"buffers", cfg.NumBuffers,
		"stall", cfg.CanStall,
		"luns", len(cfg.LUNs))

	return nil
}

// ReleaseInstance returns fi to the device.
func (f *Factory) ReleaseInstance(fi device.FunctionInstance) error {
	if err := f.dev.PutFunctionInstance(fi); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentFactory, "instance released", "kind", fi.Kind())
	return nil
}
