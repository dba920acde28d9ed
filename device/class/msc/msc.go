package msc

import (
	"fmt"
	"sync"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// Kind is the function kind name mass-storage instances are registered under.
const Kind = "mass_storage"

// Register makes the mass-storage function kind available on dev.
func Register(dev *device.Device) error {
	return dev.RegisterFunction(Kind, NewInstance)
}

// Instance is a mass-storage function instance. Its Common carries the
// buffers, stall policy and logical units configured before binding.
type Instance struct {
	common *Common
	live   int
	mutex  sync.Mutex
}

var _ device.FunctionInstance = (*Instance)(nil)

// NewInstance allocates an instance with an empty Common.
func NewInstance() (device.FunctionInstance, error) {
	return &Instance{common: NewCommon()}, nil
}

// Kind returns the function kind.
func (fi *Instance) Kind() string {
	return Kind
}

// Common returns the shared mass-storage state.
func (fi *Instance) Common() *Common {
	return fi.common
}

// SetNumBuffers allocates the buffer pipeline. See Common.SetNumBuffers.
func (fi *Instance) SetNumBuffers(n int) error {
	return fi.common.SetNumBuffers(n)
}

// FreeBuffers releases the buffer pipeline.
func (fi *Instance) FreeBuffers() {
	fi.common.FreeBuffers()
}

// SetCanStall sets the stall policy.
func (fi *Instance) SetCanStall(canStall bool) {
	fi.common.SetCanStall(canStall)
}

// CreateLUNs opens the logical units. See Common.CreateLUNs.
func (fi *Instance) CreateLUNs(cfgs []LUNConfig) error {
	return fi.common.CreateLUNs(cfgs)
}

// RemoveLUNs closes the logical units.
func (fi *Instance) RemoveLUNs() error {
	return fi.common.RemoveLUNs()
}

// SetInquiryString sets the INQUIRY identification of every unit.
func (fi *Instance) SetInquiryString(vendor, product string) {
	fi.common.SetInquiryString(vendor, product)
}

// NewFunction produces a mass-storage function. The instance must have
// buffers and at least one logical unit.
func (fi *Instance) NewFunction() (device.Function, error) {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if fi.common.NumBuffers() == 0 {
		return nil, fmt.Errorf("%w: mass storage has no buffers", pkg.ErrInvalidConfig)
	}
	if fi.common.NumLUNs() == 0 {
		return nil, fmt.Errorf("%w: mass storage has no LUNs", pkg.ErrInvalidConfig)
	}
	fi.live++
	return &Function{inst: fi}, nil
}

// Free closes every logical unit and releases the buffers.
func (fi *Instance) Free() error {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if fi.live > 0 {
		return fmt.Errorf("%w: mass storage instance has %d live functions", pkg.ErrInstanceBusy, fi.live)
	}
	return fi.common.Close()
}

// Function is an activatable mass-storage function: one SCSI transparent
// interface using Bulk-Only Transport over a bulk IN/OUT endpoint pair.
type Function struct {
	inst *Instance

	iface *device.Interface
	inEP  *device.Endpoint
	outEP *device.Endpoint

	mutex sync.RWMutex
	freed bool
}

var _ device.Function = (*Function)(nil)

// Name returns the function name.
func (f *Function) Name() string {
	return Kind
}

// packetSize picks the bulk packet size for the controller behind c.
func packetSize(c *device.Configuration) uint16 {
	if c.Speed() >= hal.SpeedHigh {
		return HighSpeedPacketSize
	}
	return FullSpeedPacketSize
}

// Bind allocates the mass-storage interface and bulk endpoints in c.
func (f *Function) Bind(c *device.Configuration) error {
	iface, err := c.AllocInterface(f, device.ClassMassStorage, SubclassSCSI, ProtocolBulkOnly)
	if err != nil {
		return err
	}

	mps := packetSize(c)
	in, err := c.AllocEndpoint(iface, device.EndpointDirectionIn, device.EndpointTypeBulk, mps, 0)
	if err != nil {
		return err
	}
	out, err := c.AllocEndpoint(iface, device.EndpointDirectionOut, device.EndpointTypeBulk, mps, 0)
	if err != nil {
		return err
	}

	f.mutex.Lock()
	f.iface, f.inEP, f.outEP = iface, in, out
	f.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "mass storage bound",
		"interface", iface.Number,
		"in", in.String(),
		"out", out.String(),
		"luns", f.inst.common.NumLUNs())

	return nil
}

// Unbind forgets the interface and endpoints allocated in Bind.
func (f *Function) Unbind(*device.Configuration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.iface, f.inEP, f.outEP = nil, nil, nil
}

// Free returns the function to its instance.
func (f *Function) Free() {
	f.mutex.Lock()
	if f.freed {
		f.mutex.Unlock()
		return
	}
	f.freed = true
	f.mutex.Unlock()

	f.inst.mutex.Lock()
	f.inst.live--
	f.inst.mutex.Unlock()
}

// Common returns the shared state of the function's instance.
func (f *Function) Common() *Common {
	return f.inst.common
}

// Interface returns the bound interface, or nil.
func (f *Function) Interface() *device.Interface {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.iface
}

// InEndpoint returns the bulk IN endpoint, or nil.
func (f *Function) InEndpoint() *device.Endpoint {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.inEP
}

// OutEndpoint returns the bulk OUT endpoint, or nil.
func (f *Function) OutEndpoint() *device.Endpoint {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.outEP
}

// MaxLUN returns the highest logical unit number, as reported to the
// host by the Get Max LUN request.
func (f *Function) MaxLUN() uint8 {
	n := f.inst.common.NumLUNs()
	if n == 0 {
		return 0
	}
	return uint8(n - 1)
}
