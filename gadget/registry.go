package gadget

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/class/hid"
	"github.com/ardnew/softgadget/pkg"
)

// MaxFunctions is the maximum number of HID functions a registry holds.
const MaxFunctions = 8

// FunctionDescriptor describes one HID function: its interface subclass
// and protocol, the fixed report length and the report descriptor.
type FunctionDescriptor struct {
	SubClass     uint8
	Protocol     uint8
	ReportLength uint16
	ReportDesc   []byte
}

// Validate reports whether d describes a usable HID function. It applies
// the same limits the HID instance does.
func (d *FunctionDescriptor) Validate() error {
	opts := d.options()
	return opts.Validate()
}

// options returns the HID instance options for d.
func (d *FunctionDescriptor) options() hid.Options {
	return hid.Options{
		SubClass:     d.SubClass,
		Protocol:     d.Protocol,
		ReportLength: d.ReportLength,
		ReportDesc:   d.ReportDesc,
	}
}

func (d FunctionDescriptor) clone() FunctionDescriptor {
	d.ReportDesc = slices.Clone(d.ReportDesc)
	return d
}

// slot holds the handles a function owns while it is assembled.
type slot struct {
	instance device.FunctionInstance
	function device.Function
}

// Node is a registry entry. While a configuration is assembled it owns
// the function instance created for its descriptor and, while attached,
// the function produced from that instance.
type Node struct {
	desc FunctionDescriptor

	slot
	mutex sync.RWMutex
}

// Descriptor returns a copy of the node's descriptor.
func (n *Node) Descriptor() FunctionDescriptor {
	return n.desc.clone()
}

// Instance returns the function instance, or nil.
func (n *Node) Instance() device.FunctionInstance {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.instance
}

// Function returns the attached function, or nil.
func (n *Node) Function() device.Function {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.function
}

func (n *Node) setInstance(fi device.FunctionInstance) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.instance = fi
}

func (n *Node) setFunction(f device.Function) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.function = f
}

func (n *Node) busy() bool {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.instance != nil || n.function != nil
}

// Registry is the ordered list of HID functions to include in the
// composite device. Registration order is attach order.
//
// Registering while a configuration is being assembled is not supported.
type Registry struct {
	nodes  []*Node
	closed bool
	mutex  sync.RWMutex
}

// NewRegistry creates an empty, open registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a copy of desc to the registry.
func (r *Registry) Register(desc FunctionDescriptor) (*Node, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return nil, pkg.ErrRegistryClosed
	}
	if len(r.nodes) >= MaxFunctions {
		return nil, fmt.Errorf("%w: %d HID functions registered", pkg.ErrResourceExhausted, len(r.nodes))
	}

	n := &Node{desc: desc.clone()}
	r.nodes = append(r.nodes, n)

	pkg.LogDebug(pkg.ComponentRegistry, "HID function registered",
		"index", len(r.nodes)-1,
		"subclass", desc.SubClass,
		"protocol", desc.Protocol,
		"reportLength", desc.ReportLength,
		"reportDescLen", len(desc.ReportDesc))

	return n, nil
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.nodes)
}

// Nodes returns the registered nodes in registration order.
func (r *Registry) Nodes() []*Node {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return slices.Clone(r.nodes)
}

// Close ends the registration phase.
func (r *Registry) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.closed {
		r.closed = true
		pkg.LogDebug(pkg.ComponentRegistry, "registration closed", "count", len(r.nodes))
	}
}

// Closed reports whether the registration phase has ended.
func (r *Registry) Closed() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.closed
}

// UnregisterAll drops every node. It is refused while any node still
// owns a handle.
func (r *Registry) UnregisterAll() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, n := range r.nodes {
		if n.busy() {
			return fmt.Errorf("%w: HID function %d is assembled", pkg.ErrInvalidState, i)
		}
	}

	pkg.LogDebug(pkg.ComponentRegistry, "HID functions unregistered", "count", len(r.nodes))
	r.nodes = nil
	return nil
}
