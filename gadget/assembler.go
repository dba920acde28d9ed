package gadget

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/class/cdc"
	"github.com/ardnew/softgadget/device/class/hid"
	"github.com/ardnew/softgadget/device/class/msc"
	"github.com/ardnew/softgadget/pkg"
)

// State is the assembly state of a composite configuration.
type State int

// Assembly states.
const (
	StateEmpty State = iota
	StateFunctionsCreated
	StateDescriptorsConfigured
	StateFunctionsAttached
	StatePublished
	StateRollingBack
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFunctionsCreated:
		return "functions-created"
	case StateDescriptorsConfigured:
		return "descriptors-configured"
	case StateFunctionsAttached:
		return "functions-attached"
	case StatePublished:
		return "published"
	case StateRollingBack:
		return "rolling-back"
	default:
		return "unknown"
	}
}

// Assembler builds the composite configuration from the registered HID
// functions, the optional ACM function and the mass-storage function,
// and tears it down again. A configuration is either fully assembled or
// nothing it acquired is left behind.
type Assembler struct {
	registry *Registry
	params   Params

	state     State
	acm       slot
	storage   slot
	stringIDs []uint8
	config    *device.Configuration
	teardown  *Rollback

	mutex sync.Mutex
}

// NewAssembler creates an assembler for the functions in registry.
func NewAssembler(registry *Registry, params Params) *Assembler {
	return &Assembler{
		registry: registry,
		params:   params,
	}
}

// State returns the current assembly state.
func (a *Assembler) State() State {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

// Configuration returns the assembled configuration, or nil.
func (a *Assembler) Configuration() *device.Configuration {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.config
}

// StringIDs returns the manufacturer, product and serial string IDs, or
// nil when nothing is assembled.
func (a *Assembler) StringIDs() []uint8 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return slices.Clone(a.stringIDs)
}

// Storage returns the shared state of the mass-storage instance, or nil.
func (a *Assembler) Storage() *msc.Common {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if inst, ok := a.storage.instance.(storageInstance); ok {
		return inst.Common()
	}
	return nil
}

// ACM returns the ACM instance, or nil.
func (a *Assembler) ACM() *cdc.Instance {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	inst, _ := a.acm.instance.(*cdc.Instance)
	return inst
}

func (a *Assembler) setState(state State) {
	if a.state != state {
		pkg.LogDebug(pkg.ComponentAssembler, "state change",
			"from", a.state.String(),
			"to", state.String())
	}
	a.state = state
}

// Assemble creates every function instance, allocates the device strings
// and OTG descriptor, and registers the composite configuration with dev.
// On failure everything acquired so far is released in reverse order and
// the returned error wraps both the failing stage and its cause.
func (a *Assembler) Assemble(dev *device.Device) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.state != StateEmpty {
		return fmt.Errorf("%w: assembler is %s", pkg.ErrInvalidState, a.state)
	}
	if !a.registry.Closed() {
		return pkg.ErrRegistryOpen
	}
	nodes := a.registry.Nodes()
	if len(nodes) == 0 && a.params.RequireHID {
		return pkg.ErrNoHIDFunctions
	}

	factory := NewFactory(dev)
	rb := &Rollback{}
	fail := func(err error) error {
		pkg.LogError(pkg.ComponentAssembler, "assembly failed", "error", err)
		a.setState(StateRollingBack)
		if uerr := rb.Unwind(); uerr != nil {
			err = errors.Join(err, uerr)
		}
		a.setState(StateEmpty)
		return err
	}

	for i, n := range nodes {
		fi, err := factory.CreateInstance(hid.Kind)
		if err != nil {
			return fail(fmt.Errorf("%w: HID function %d: %w", pkg.ErrInstanceCreation, i, err))
		}
		n.setInstance(fi)
		rb.Push(fmt.Sprintf("release HID instance %d", i), func() error {
			n.setInstance(nil)
			return factory.ReleaseInstance(fi)
		})

		if err := factory.ConfigureHID(fi, n.desc); err != nil {
			return fail(fmt.Errorf("%w: HID function %d: %w", pkg.ErrInstanceCreation, i, err))
		}
	}

	if a.params.EnableACM {
		fi, err := factory.CreateInstance(cdc.Kind)
		if err != nil {
			return fail(fmt.Errorf("%w: ACM: %w", pkg.ErrInstanceCreation, err))
		}
		a.acm.instance = fi
		rb.Push("release ACM instance", func() error {
			a.acm.instance = nil
			return factory.ReleaseInstance(fi)
		})
	}
	a.setState(StateFunctionsCreated)

	fi, err := factory.CreateInstance(msc.Kind)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", pkg.ErrStorageInit, err))
	}
	a.storage.instance = fi
	rb.Push("release mass storage instance", func() error {
		a.storage.instance = nil
		return factory.ReleaseInstance(fi)
	})
	if err := factory.ConfigureMassStorage(fi, NewMassStorageConfig(a.params), rb); err != nil {
		return fail(fmt.Errorf("%w: %w", pkg.ErrStorageInit, err))
	}

	ids, err := dev.AllocateStringIDs([]string{a.params.Manufacturer, a.params.Product, a.params.Serial})
	if err != nil {
		return fail(fmt.Errorf("%w: device strings: %w", pkg.ErrDescriptorAllocation, err))
	}
	a.stringIDs = ids
	dev.Descriptor.ManufacturerIndex = ids[0]
	dev.Descriptor.ProductIndex = ids[1]
	dev.Descriptor.SerialNumberIndex = ids[2]
	rb.Push("free device strings", func() error {
		a.stringIDs = nil
		dev.Descriptor.ManufacturerIndex = 0
		dev.Descriptor.ProductIndex = 0
		dev.Descriptor.SerialNumberIndex = 0
		return dev.FreeStringIDs(ids)
	})

	var otg *device.OTGDescriptor
	if dev.IsOTG() {
		otg, err = dev.AllocOTGDescriptor()
		if err != nil {
			return fail(fmt.Errorf("%w: OTG descriptor: %w", pkg.ErrDescriptorAllocation, err))
		}
		rb.Push("free OTG descriptor", dev.FreeOTGDescriptor)
	}
	a.setState(StateDescriptorsConfigured)

	c := device.NewConfiguration(a.params.Label(), ConfigValue)
	c.SetSelfPowered(a.params.SelfPowered)
	if otg != nil {
		c.Descriptors = [][]byte{otg.Bytes()}
		c.SetRemoteWakeup(true)
	}

	if err := dev.AddConfig(c, a.attach, a.detach); err != nil {
		if !errors.Is(err, pkg.ErrAttach) {
			err = fmt.Errorf("%w: configuration %d: %w", pkg.ErrAttach, c.Value, err)
		}
		return fail(err)
	}
	a.config = c
	rb.Push("remove configuration", func() error {
		a.config = nil
		// A failed rebuild has already dropped the configuration.
		if err := dev.RemoveConfig(c); err != nil && !errors.Is(err, pkg.ErrInvalidState) {
			return err
		}
		return nil
	})

	a.teardown = rb.Commit()
	a.setState(StatePublished)

	pkg.LogInfo(pkg.ComponentAssembler, "composite configuration assembled",
		"label", c.Label,
		"hid", len(nodes),
		"acm", a.params.EnableACM,
		"interfaces", c.NumInterfaces(),
		"endpoints", c.NumEndpoints(),
		"otg", otg != nil)

	return nil
}

// attach acquires a function from every instance and adds it to c: the
// HID functions in registration order, then ACM, then mass storage. If
// any step fails the functions attached in this pass are detached and
// released in reverse order. When a rebuild fails the assembler falls
// back to StateDescriptorsConfigured and forgets c, which the device has
// dropped; Teardown still releases everything else.
func (a *Assembler) attach(c *device.Configuration) error {
	dev := c.Device()
	rb := &Rollback{}

	add := func(name string, fi device.FunctionInstance, set func(device.Function)) error {
		f, err := dev.GetFunction(fi)
		if err != nil {
			return err
		}
		if err := c.AddFunction(f); err != nil {
			if perr := dev.PutFunction(f); perr != nil {
				err = errors.Join(err, perr)
			}
			return err
		}
		set(f)
		rb.Push("detach "+name, func() error {
			set(nil)
			return errors.Join(c.RemoveFunction(f), dev.PutFunction(f))
		})
		return nil
	}

	fail := func(err error) error {
		if uerr := rb.Unwind(); uerr != nil {
			err = errors.Join(err, uerr)
		}
		// A failed rebuild drops c from the device.
		if a.state == StateFunctionsAttached || a.state == StatePublished {
			pkg.LogWarn(pkg.ComponentAssembler, "configuration dropped", "config", c.Value)
			a.config = nil
			a.setState(StateDescriptorsConfigured)
		}
		return fmt.Errorf("%w: %w", pkg.ErrAttach, err)
	}

	for i, n := range a.registry.Nodes() {
		fi := n.Instance()
		if fi == nil {
			return fail(fmt.Errorf("%w: HID function %d has no instance", pkg.ErrInvalidState, i))
		}
		if err := add(fmt.Sprintf("HID function %d", i), fi, n.setFunction); err != nil {
			return fail(fmt.Errorf("HID function %d: %w", i, err))
		}
	}

	if a.acm.instance != nil {
		if err := add("ACM", a.acm.instance, func(f device.Function) { a.acm.function = f }); err != nil {
			return fail(fmt.Errorf("ACM: %w", err))
		}
	}

	if a.storage.instance == nil {
		return fail(fmt.Errorf("%w: no mass storage instance", pkg.ErrInvalidState))
	}
	if err := add("mass storage", a.storage.instance, func(f device.Function) { a.storage.function = f }); err != nil {
		return fail(fmt.Errorf("mass storage: %w", err))
	}

	if a.state == StateDescriptorsConfigured {
		a.setState(StateFunctionsAttached)
	}
	return nil
}

// detach reverses a successful attach pass.
func (a *Assembler) detach(c *device.Configuration) error {
	dev := c.Device()
	var errs []error

	release := func(name string, f device.Function) {
		if f == nil {
			return
		}
		if err := c.RemoveFunction(f); err != nil {
			errs = append(errs, fmt.Errorf("detach %s: %w", name, err))
		}
		if err := dev.PutFunction(f); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", name, err))
		}
	}

	release("mass storage", a.storage.function)
	a.storage.function = nil
	release("ACM", a.acm.function)
	a.acm.function = nil

	nodes := a.registry.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		release(fmt.Sprintf("HID function %d", i), nodes[i].Function())
		nodes[i].setFunction(nil)
	}

	return errors.Join(errs...)
}

// Teardown releases everything Assemble acquired, newest first: the
// configuration with its attached functions, the OTG descriptor, the
// device strings, the LUNs and buffers, and the storage, ACM and HID
// instances. It is a no-op when nothing is assembled.
func (a *Assembler) Teardown() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.teardown == nil {
		return nil
	}

	a.setState(StateRollingBack)
	err := a.teardown.Unwind()
	a.teardown = nil
	a.setState(StateEmpty)

	if err != nil {
		pkg.LogWarn(pkg.ComponentAssembler, "teardown incomplete", "error", err)
		return err
	}
	pkg.LogInfo(pkg.ComponentAssembler, "composite configuration torn down")
	return nil
}
