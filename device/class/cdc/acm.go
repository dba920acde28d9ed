package cdc

import (
	"fmt"
	"sync"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// Kind is the function kind name ACM instances are registered under.
const Kind = "acm"

// Register makes the ACM function kind available on dev.
func Register(dev *device.Device) error {
	return dev.RegisterFunction(Kind, NewInstance)
}

// Instance is a CDC-ACM function instance.
type Instance struct {
	lineCoding LineCoding
	live       int
	mutex      sync.Mutex
}

var _ device.FunctionInstance = (*Instance)(nil)

// NewInstance allocates an instance using DefaultLineCoding.
func NewInstance() (device.FunctionInstance, error) {
	return &Instance{lineCoding: DefaultLineCoding}, nil
}

// Kind returns the function kind.
func (fi *Instance) Kind() string {
	return Kind
}

// SetLineCoding sets the line coding reported before the host sets one.
func (fi *Instance) SetLineCoding(lc LineCoding) error {
	if !lc.Valid() {
		return fmt.Errorf("%w: line coding %+v", pkg.ErrInvalidConfig, lc)
	}

	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if fi.live > 0 {
		return fmt.Errorf("%w: ACM instance has %d live functions", pkg.ErrInstanceBusy, fi.live)
	}
	fi.lineCoding = lc
	return nil
}

// LineCoding returns the configured line coding.
func (fi *Instance) LineCoding() LineCoding {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()
	return fi.lineCoding
}

// NewFunction produces an ACM function.
func (fi *Instance) NewFunction() (device.Function, error) {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	fi.live++
	return &Function{inst: fi, lineCoding: fi.lineCoding}, nil
}

// Free releases the instance.
func (fi *Instance) Free() error {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if fi.live > 0 {
		return fmt.Errorf("%w: ACM instance has %d live functions", pkg.ErrInstanceBusy, fi.live)
	}
	return nil
}

// Function is an activatable CDC-ACM function. It claims a
// communications interface with an interrupt notification endpoint and a
// data interface with a bulk IN/OUT pair, grouped by an interface
// association.
type Function struct {
	inst       *Instance
	lineCoding LineCoding

	controlIface *device.Interface
	dataIface    *device.Interface
	notifyEP     *device.Endpoint
	dataInEP     *device.Endpoint
	dataOutEP    *device.Endpoint

	mutex sync.RWMutex
	freed bool
}

var _ device.Function = (*Function)(nil)

// Name returns the function name.
func (f *Function) Name() string {
	return Kind
}

// Bind allocates both interfaces and all three endpoints in c.
func (f *Function) Bind(c *device.Configuration) error {
	control, err := c.AllocInterface(f, device.ClassCDC, SubclassACM, ProtocolAT)
	if err != nil {
		return err
	}
	notify, err := c.AllocEndpoint(control, device.EndpointDirectionIn,
		device.EndpointTypeInterrupt, NotifyMaxPacket, NotifyInterval)
	if err != nil {
		return err
	}

	data, err := c.AllocInterface(f, device.ClassCDCData, SubclassNone, ProtocolNone)
	if err != nil {
		return err
	}

	mps := uint16(FullSpeedPacketSize)
	if c.Speed() >= hal.SpeedHigh {
		mps = HighSpeedPacketSize
	}
	in, err := c.AllocEndpoint(data, device.EndpointDirectionIn, device.EndpointTypeBulk, mps, 0)
	if err != nil {
		return err
	}
	out, err := c.AllocEndpoint(data, device.EndpointDirectionOut, device.EndpointTypeBulk, mps, 0)
	if err != nil {
		return err
	}

	control.Association = &device.InterfaceAssociationDescriptor{
		FirstInterface:   control.Number,
		InterfaceCount:   2,
		FunctionClass:    device.ClassCDC,
		FunctionSubClass: SubclassACM,
		FunctionProtocol: ProtocolAT,
	}
	fd := FunctionalDescriptors{
		ACMCapabilities:  ACMCapLineCoding,
		ControlInterface: control.Number,
		DataInterface:    data.Number,
	}
	control.ClassDescriptors = make([]byte, FunctionalDescriptorsSize)
	fd.MarshalTo(control.ClassDescriptors)

	f.mutex.Lock()
	f.controlIface, f.dataIface = control, data
	f.notifyEP, f.dataInEP, f.dataOutEP = notify, in, out
	f.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "ACM bound",
		"control", control.Number,
		"data", data.Number,
		"notify", notify.String(),
		"in", in.String(),
		"out", out.String())

	return nil
}

// Unbind forgets the interfaces and endpoints allocated in Bind.
func (f *Function) Unbind(*device.Configuration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.controlIface, f.dataIface = nil, nil
	f.notifyEP, f.dataInEP, f.dataOutEP = nil, nil, nil
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

// ControlInterface returns the communications interface, or nil.
func (f *Function) ControlInterface() *device.Interface {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.controlIface
}

// DataInterface returns the data interface, or nil.
func (f *Function) DataInterface() *device.Interface {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.dataIface
}

// NotifyEndpoint returns the interrupt IN endpoint, or nil.
func (f *Function) NotifyEndpoint() *device.Endpoint {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.notifyEP
}

// DataEndpoints returns the bulk IN and OUT endpoints, or nil.
func (f *Function) DataEndpoints() (in, out *device.Endpoint) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.dataInEP, f.dataOutEP
}

// LineCoding returns the line coding the function was created with.
func (f *Function) LineCoding() LineCoding {
	return f.lineCoding
}
