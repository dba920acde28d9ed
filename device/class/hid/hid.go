package hid

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/pkg"
)

// Kind is the function kind name HID instances are registered under.
const Kind = "hid"

// MaxReportSize is the maximum HID report size, bounded by the full-speed
// interrupt packet size.
const MaxReportSize = 64

// DefaultInterval is the interrupt polling interval in frames.
const DefaultInterval = 4

// Options configures a HID function instance.
type Options struct {
	SubClass     uint8  // Interface subclass (SubclassNone, SubclassBoot)
	Protocol     uint8  // Interface protocol (ProtocolKeyboard, ProtocolMouse)
	ReportLength uint16 // Fixed report length in bytes
	ReportDesc   []byte // Report descriptor
}

// Validate reports whether the options describe a usable function.
func (o *Options) Validate() error {
	if o.ReportLength == 0 || o.ReportLength > MaxReportSize {
		return fmt.Errorf("%w: HID report length %d", pkg.ErrInvalidConfig, o.ReportLength)
	}
	if len(o.ReportDesc) == 0 {
		return fmt.Errorf("%w: empty HID report descriptor", pkg.ErrInvalidConfig)
	}
	if len(o.ReportDesc) > 0xFFFF {
		return fmt.Errorf("%w: HID report descriptor is %d bytes", pkg.ErrInvalidConfig, len(o.ReportDesc))
	}
	return nil
}

// Register makes the HID function kind available on dev.
func Register(dev *device.Device) error {
	return dev.RegisterFunction(Kind, NewInstance)
}

// Instance is a HID function instance.
type Instance struct {
	opts  Options
	live  int
	mutex sync.Mutex
}

var _ device.FunctionInstance = (*Instance)(nil)

// NewInstance allocates an unconfigured HID instance.
func NewInstance() (device.FunctionInstance, error) {
	return &Instance{}, nil
}

// Kind returns the function kind.
func (fi *Instance) Kind() string {
	return Kind
}

// SetOptions copies opts into the instance. The report descriptor is
// copied, so later changes by the caller do not reach the instance.
//
// Returns pkg.ErrInvalidConfig if opts fail Validate, and
// pkg.ErrInstanceBusy once the instance has a live function.
func (fi *Instance) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if fi.live > 0 {
		return fmt.Errorf("%w: HID instance has %d live functions", pkg.ErrInstanceBusy, fi.live)
	}
	fi.opts = opts
	fi.opts.ReportDesc = slices.Clone(opts.ReportDesc)
	return nil
}

// Options returns a copy of the instance options.
func (fi *Instance) Options() Options {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	opts := fi.opts
	opts.ReportDesc = slices.Clone(fi.opts.ReportDesc)
	return opts
}

// NewFunction produces a HID function using the current options.
func (fi *Instance) NewFunction() (device.Function, error) {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if err := fi.opts.Validate(); err != nil {
		return nil, err
	}
	fi.live++
	return &Function{inst: fi, opts: fi.opts}, nil
}

// Free releases the report descriptor.
func (fi *Instance) Free() error {
	fi.mutex.Lock()
	defer fi.mutex.Unlock()

	if fi.live > 0 {
		return fmt.Errorf("%w: HID instance has %d live functions", pkg.ErrInstanceBusy, fi.live)
	}
	fi.opts = Options{}
	return nil
}

// Function is an activatable HID function with one interface, an
// interrupt IN endpoint for input reports and an interrupt OUT endpoint
// for output reports.
type Function struct {
	inst *Instance
	opts Options

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

// Bind allocates the HID interface and endpoints in c.
func (f *Function) Bind(c *device.Configuration) error {
	iface, err := c.AllocInterface(f, device.ClassHID, f.opts.SubClass, f.opts.Protocol)
	if err != nil {
		return err
	}

	in, err := c.AllocEndpoint(iface, device.EndpointDirectionIn,
		device.EndpointTypeInterrupt, f.opts.ReportLength, DefaultInterval)
	if err != nil {
		return err
	}
	out, err := c.AllocEndpoint(iface, device.EndpointDirectionOut,
		device.EndpointTypeInterrupt, f.opts.ReportLength, DefaultInterval)
	if err != nil {
		return err
	}

	desc := HIDDescriptor{
		HIDVersion:     HIDVersion,
		CountryCode:    CountryNone,
		NumDescriptors: 1,
		ReportDescLen:  uint16(len(f.opts.ReportDesc)),
	}
	iface.ClassDescriptors = make([]byte, HIDDescriptorSize)
	desc.MarshalTo(iface.ClassDescriptors)

	f.mutex.Lock()
	f.iface, f.inEP, f.outEP = iface, in, out
	f.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "HID bound",
		"interface", iface.Number,
		"in", in.String(),
		"out", out.String(),
		"reportLength", f.opts.ReportLength,
		"reportDescLen", len(f.opts.ReportDesc))

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

// Interface returns the bound interface, or nil.
func (f *Function) Interface() *device.Interface {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.iface
}

// InEndpoint returns the interrupt IN endpoint, or nil.
func (f *Function) InEndpoint() *device.Endpoint {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.inEP
}

// OutEndpoint returns the interrupt OUT endpoint, or nil.
func (f *Function) OutEndpoint() *device.Endpoint {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.outEP
}

// ReportDescriptor returns the report descriptor.
// The returned slice references internal storage; do not modify.
func (f *Function) ReportDescriptor() []byte {
	return f.opts.ReportDesc
}

// ReportLength returns the fixed report length.
func (f *Function) ReportLength() uint16 {
	return f.opts.ReportLength
}
