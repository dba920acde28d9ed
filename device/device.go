package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// configEntry is a configuration registered with AddConfig together with
// the callbacks that build and tear down its functions.
type configEntry struct {
	config *Configuration
	bind   ConfigFunc
	unbind ConfigFunc
}

// functionEntry tracks a live function handle.
type functionEntry struct {
	instance FunctionInstance
	config   *Configuration // nil while not attached
}

// Device is the composite device engine. It owns the function-driver
// table, the string table, the OTG descriptor and the configurations of a
// gadget, and publishes the bound result through a hal.Controller.
type Device struct {
	// Device descriptor
	Descriptor *DeviceDescriptor

	controller hal.Controller

	// Function-driver table and live handles
	drivers   map[string]FunctionAllocator
	instances map[FunctionInstance]int // live functions per instance
	functions map[Function]*functionEntry

	// String table; index 0 is reserved for the language IDs
	strings    [MaxStrings]string
	stringUsed [MaxStrings]bool

	otg *OTGDescriptor

	// Configurations - fixed-size array for zero allocation
	configs     [MaxConfigurations]configEntry
	configCount int

	driver Driver
	state  State

	mutex sync.Mutex
}

// NewDeviceDescriptor returns a USB 2.0 device descriptor for a composite
// device using interface association descriptors.
func NewDeviceDescriptor(vendorID, productID, bcdDevice uint16) *DeviceDescriptor {
	return &DeviceDescriptor{
		USBVersion:     0x0200,
		DeviceClass:    CompositeDeviceClass,
		DeviceSubClass: CompositeDeviceSubClass,
		DeviceProtocol: CompositeDeviceProtocol,
		MaxPacketSize0: 64,
		VendorID:       vendorID,
		ProductID:      productID,
		DeviceVersion:  bcdDevice,
	}
}

// NewDevice creates a device engine publishing through ctrl.
// A nil desc selects NewDeviceDescriptor(0, 0, 0).
func NewDevice(desc *DeviceDescriptor, ctrl hal.Controller) *Device {
	if desc == nil {
		desc = NewDeviceDescriptor(0, 0, 0)
	}
	return &Device{
		Descriptor: desc,
		controller: ctrl,
		drivers:    make(map[string]FunctionAllocator),
		instances:  make(map[FunctionInstance]int),
		functions:  make(map[Function]*functionEntry),
	}
}

// Controller returns the controller the device publishes through.
func (d *Device) Controller() hal.Controller {
	return d.controller
}

// State returns the publication state.
func (d *Device) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// RegisterFunction makes a function kind available to GetFunctionInstance.
func (d *Device) RegisterFunction(kind string, alloc FunctionAllocator) error {
	if kind == "" || alloc == nil {
		return fmt.Errorf("%w: function driver %q", pkg.ErrInvalidConfig, kind)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.drivers[kind]; exists {
		return fmt.Errorf("%w: function driver %q already registered", pkg.ErrInvalidState, kind)
	}
	d.drivers[kind] = alloc

	pkg.LogDebug(pkg.ComponentDevice, "function driver registered", "kind", kind)
	return nil
}

// SupportsFunction reports whether a driver for kind is registered.
func (d *Device) SupportsFunction(kind string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, ok := d.drivers[kind]
	return ok
}

// GetFunctionInstance creates a new instance of the named function kind.
//
// Returns pkg.ErrCapabilityUnavailable if no driver for kind is registered.
func (d *Device) GetFunctionInstance(kind string) (FunctionInstance, error) {
	d.mutex.Lock()
	alloc, ok := d.drivers[kind]
	d.mutex.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: function %q", pkg.ErrCapabilityUnavailable, kind)
	}

	fi, err := alloc()
	if err != nil {
		return nil, fmt.Errorf("allocate %s instance: %w", kind, err)
	}

	d.mutex.Lock()
	d.instances[fi] = 0
	live := len(d.instances)
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "function instance created",
		"kind", kind,
		"live", live)

	return fi, nil
}

// PutFunctionInstance returns an instance and frees its resources.
//
// Returns pkg.ErrAlreadyReleased if fi is not live, and
// pkg.ErrInstanceBusy while functions produced by fi are still live.
func (d *Device) PutFunctionInstance(fi FunctionInstance) error {
	d.mutex.Lock()
	n, ok := d.instances[fi]
	if !ok {
		d.mutex.Unlock()
		return fmt.Errorf("%w: function instance", pkg.ErrAlreadyReleased)
	}
	if n > 0 {
		d.mutex.Unlock()
		return fmt.Errorf("%w: %s has %d live functions", pkg.ErrInstanceBusy, fi.Kind(), n)
	}
	delete(d.instances, fi)
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "function instance released", "kind", fi.Kind())

	if err := fi.Free(); err != nil {
		return fmt.Errorf("free %s instance: %w", fi.Kind(), err)
	}
	return nil
}

// GetFunction produces an activatable function from a live instance.
func (d *Device) GetFunction(fi FunctionInstance) (Function, error) {
	d.mutex.Lock()
	_, ok := d.instances[fi]
	d.mutex.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: function instance not live", pkg.ErrInvalidState)
	}

	f, err := fi.NewFunction()
	if err != nil {
		return nil, fmt.Errorf("get %s function: %w", fi.Kind(), err)
	}

	d.mutex.Lock()
	d.functions[f] = &functionEntry{instance: fi}
	d.instances[fi]++
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "function created", "function", f.Name())
	return f, nil
}

// PutFunction releases a function that is not attached to any
// configuration.
func (d *Device) PutFunction(f Function) error {
	d.mutex.Lock()
	entry, ok := d.functions[f]
	if !ok {
		d.mutex.Unlock()
		return fmt.Errorf("%w: function", pkg.ErrAlreadyReleased)
	}
	if entry.config != nil {
		d.mutex.Unlock()
		return fmt.Errorf("%w: %s still attached to configuration %d",
			pkg.ErrInvalidState, f.Name(), entry.config.Value)
	}
	delete(d.functions, f)
	d.instances[entry.instance]--
	d.mutex.Unlock()

	f.Free()

	pkg.LogDebug(pkg.ComponentFunction, "function released", "function", f.Name())
	return nil
}

// LiveInstances returns the number of instances not yet returned.
func (d *Device) LiveInstances() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.instances)
}

// LiveFunctions returns the number of functions not yet returned.
func (d *Device) LiveFunctions() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.functions)
}

// markAttached records that f is attached to c.
func (d *Device) markAttached(f Function, c *Configuration) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, ok := d.functions[f]
	if !ok {
		return fmt.Errorf("%w: %s was not obtained from this device", pkg.ErrInvalidState, f.Name())
	}
	if entry.config != nil {
		return fmt.Errorf("%w: %s in configuration %d",
			pkg.ErrAlreadyAttached, f.Name(), entry.config.Value)
	}
	entry.config = c
	return nil
}

// markDetached records that f is no longer attached.
func (d *Device) markDetached(f Function) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if entry, ok := d.functions[f]; ok {
		entry.config = nil
	}
}

// AllocateStringIDs assigns one string ID per entry of strs. Either every
// string gets an ID or none does.
//
// Returns pkg.ErrStringIDsExhausted if the table cannot hold all of them.
func (d *Device) AllocateStringIDs(strs []string) ([]uint8, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	free := make([]uint8, 0, len(strs))
	for id := 1; id < MaxStrings && len(free) < len(strs); id++ {
		if !d.stringUsed[id] {
			free = append(free, uint8(id))
		}
	}
	if len(free) < len(strs) {
		return nil, fmt.Errorf("%w: need %d, have %d", pkg.ErrStringIDsExhausted, len(strs), len(free))
	}

	for i, id := range free {
		d.strings[id] = strs[i]
		d.stringUsed[id] = true
	}

	pkg.LogDebug(pkg.ComponentDevice, "string IDs allocated", "ids", free)
	return free, nil
}

// FreeStringIDs returns string IDs to the table.
func (d *Device) FreeStringIDs(ids []uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var errs []error
	for _, id := range ids {
		if id == 0 || int(id) >= MaxStrings || !d.stringUsed[id] {
			errs = append(errs, fmt.Errorf("%w: string ID %d", pkg.ErrAlreadyReleased, id))
			continue
		}
		d.strings[id] = ""
		d.stringUsed[id] = false
	}
	return errors.Join(errs...)
}

// String returns the string assigned to id.
func (d *Device) String(id uint8) (string, bool) {
	if int(id) >= MaxStrings {
		return "", false
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.strings[id], d.stringUsed[id]
}

// NumStrings returns the number of allocated string IDs.
func (d *Device) NumStrings() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for _, used := range d.stringUsed {
		if used {
			n++
		}
	}
	return n
}

// IsOTG reports whether the controller is dual-role capable.
func (d *Device) IsOTG() bool {
	return d.controller != nil && d.controller.IsOTG()
}

// AllocOTGDescriptor allocates the device's OTG descriptor advertising
// SRP and HNP.
func (d *Device) AllocOTGDescriptor() (*OTGDescriptor, error) {
	if !d.IsOTG() {
		return nil, fmt.Errorf("%w: controller is not dual-role", pkg.ErrCapabilityUnavailable)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.otg != nil {
		return nil, fmt.Errorf("%w: OTG descriptor already allocated", pkg.ErrInvalidState)
	}
	d.otg = &OTGDescriptor{
		Attributes: OTGAttrSRP | OTGAttrHNP,
		OTGVersion: 0x0200,
	}
	return d.otg, nil
}

// FreeOTGDescriptor releases the OTG descriptor.
func (d *Device) FreeOTGDescriptor() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.otg == nil {
		return fmt.Errorf("%w: OTG descriptor", pkg.ErrAlreadyReleased)
	}
	d.otg = nil
	return nil
}

// OTGDescriptor returns the allocated OTG descriptor, or nil.
func (d *Device) OTGDescriptor() *OTGDescriptor {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.otg
}

// AddConfig registers c with the device and immediately builds it by
// calling bind. If bind fails, any function it left attached is removed
// and the error is returned unchanged.
func (d *Device) AddConfig(c *Configuration, bind, unbind ConfigFunc) error {
	if c == nil || bind == nil || c.Value == 0 {
		return fmt.Errorf("%w: configuration", pkg.ErrInvalidConfig)
	}

	d.mutex.Lock()
	if d.configCount >= MaxConfigurations {
		d.mutex.Unlock()
		return fmt.Errorf("%w: configurations", pkg.ErrResourceExhausted)
	}
	for idx := 0; idx < d.configCount; idx++ {
		if d.configs[idx].config.Value == c.Value || d.configs[idx].config == c {
			d.mutex.Unlock()
			return fmt.Errorf("%w: configuration value %d in use", pkg.ErrInvalidConfig, c.Value)
		}
	}
	d.mutex.Unlock()

	c.mutex.Lock()
	if c.dev != nil {
		c.mutex.Unlock()
		return fmt.Errorf("%w: configuration %d belongs to a device", pkg.ErrInvalidState, c.Value)
	}
	c.dev = d
	c.mutex.Unlock()

	if err := bind(c); err != nil {
		d.discard(c)
		pkg.LogDebug(pkg.ComponentDevice, "configuration bind failed",
			"config", c.Value,
			"error", err)
		return err
	}

	d.mutex.Lock()
	d.configs[d.configCount] = configEntry{config: c, bind: bind, unbind: unbind}
	d.configCount++
	d.Descriptor.NumConfigurations = uint8(d.configCount)
	d.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentDevice, "configuration added",
		"config", c.Value,
		"label", c.Label,
		"functions", len(c.Functions()),
		"interfaces", c.NumInterfaces())

	return nil
}

// discard removes whatever functions remain in c and detaches it from d.
func (d *Device) discard(c *Configuration) {
	functions := c.Functions()
	for i := len(functions) - 1; i >= 0; i-- {
		pkg.LogWarn(pkg.ComponentDevice, "removing function left in configuration",
			"config", c.Value,
			"function", functions[i].Name())
		c.RemoveFunction(functions[i])
	}
	c.reset()

	c.mutex.Lock()
	c.dev = nil
	c.mutex.Unlock()
}

// lookupConfig returns the index of the configuration with the given
// value. Must be called with the mutex held.
func (d *Device) lookupConfig(value uint8) int {
	for idx := 0; idx < d.configCount; idx++ {
		if d.configs[idx].config.Value == value {
			return idx
		}
	}
	return -1
}

// RemoveConfig tears down c by calling its unbind callback and drops it
// from the device.
func (d *Device) RemoveConfig(c *Configuration) error {
	if c == nil {
		return fmt.Errorf("%w: configuration", pkg.ErrInvalidConfig)
	}

	d.mutex.Lock()
	idx := d.lookupConfig(c.Value)
	if idx < 0 || d.configs[idx].config != c {
		d.mutex.Unlock()
		return fmt.Errorf("%w: configuration %d not registered", pkg.ErrInvalidState, c.Value)
	}
	entry := d.configs[idx]
	copy(d.configs[idx:d.configCount], d.configs[idx+1:d.configCount])
	d.configCount--
	d.configs[d.configCount] = configEntry{}
	d.Descriptor.NumConfigurations = uint8(d.configCount)
	d.mutex.Unlock()

	var err error
	if entry.unbind != nil {
		err = entry.unbind(c)
	}
	d.discard(c)

	pkg.LogInfo(pkg.ComponentDevice, "configuration removed", "config", c.Value)
	return err
}

// Rebuild tears down and rebuilds the configuration with the given value
// using its registered callbacks. The device must not be published. If
// the rebuild fails the configuration is dropped.
func (d *Device) Rebuild(value uint8) error {
	d.mutex.Lock()
	if d.state == StatePublished {
		d.mutex.Unlock()
		return fmt.Errorf("%w: device is published", pkg.ErrInvalidState)
	}
	idx := d.lookupConfig(value)
	if idx < 0 {
		d.mutex.Unlock()
		return fmt.Errorf("%w: configuration %d not registered", pkg.ErrInvalidState, value)
	}
	entry := d.configs[idx]
	d.mutex.Unlock()

	c := entry.config
	if entry.unbind != nil {
		if err := entry.unbind(c); err != nil {
			pkg.LogWarn(pkg.ComponentDevice, "configuration unbind failed during rebuild",
				"config", value,
				"error", err)
		}
	}
	for _, f := range c.Functions() {
		c.RemoveFunction(f)
	}
	c.reset()

	if err := entry.bind(c); err != nil {
		d.mutex.Lock()
		if idx := d.lookupConfig(value); idx >= 0 {
			copy(d.configs[idx:d.configCount], d.configs[idx+1:d.configCount])
			d.configCount--
			d.configs[d.configCount] = configEntry{}
			d.Descriptor.NumConfigurations = uint8(d.configCount)
		}
		d.mutex.Unlock()
		d.discard(c)
		return err
	}

	pkg.LogInfo(pkg.ComponentDevice, "configuration rebuilt",
		"config", value,
		"functions", len(c.Functions()))
	return nil
}

// Configurations returns the registered configurations in the order they
// were added.
func (d *Device) Configurations() []*Configuration {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	configs := make([]*Configuration, d.configCount)
	for idx := range configs {
		configs[idx] = d.configs[idx].config
	}
	return configs
}

// GetConfiguration returns the configuration with the given value.
func (d *Device) GetConfiguration(value uint8) *Configuration {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if idx := d.lookupConfig(value); idx >= 0 {
		return d.configs[idx].config
	}
	return nil
}

// Image serializes the device, its configurations, string table and OTG
// descriptor.
func (d *Device) Image() (*hal.Image, error) {
	configs := d.Configurations()

	d.mutex.Lock()
	img := &hal.Image{Device: make([]byte, DeviceDescriptorSize)}
	d.Descriptor.MarshalTo(img.Device)

	last := 0
	for id := 1; id < MaxStrings; id++ {
		if d.stringUsed[id] {
			last = id
		}
	}
	img.Strings = make([][]byte, last+1)
	var buf [255]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)
	img.Strings[0] = append([]byte(nil), buf[:n]...)
	for id := 1; id <= last; id++ {
		if d.stringUsed[id] {
			n = StringDescriptorTo(buf[:], d.strings[id])
			img.Strings[id] = append([]byte(nil), buf[:n]...)
		}
	}

	if d.otg != nil {
		img.OTG = d.otg.Bytes()
	}
	d.mutex.Unlock()

	for _, c := range configs {
		data, err := c.Bytes()
		if err != nil {
			return nil, err
		}
		img.Configurations = append(img.Configurations, data)
	}
	return img, nil
}

// Probe binds drv to the device and publishes the result through the
// controller. The device is published only if Bind succeeds; if publishing
// fails the driver is unbound again.
func (d *Device) Probe(ctx context.Context, drv Driver) error {
	if drv == nil {
		return fmt.Errorf("%w: nil driver", pkg.ErrInvalidConfig)
	}
	if d.controller == nil {
		return fmt.Errorf("%w: no controller", pkg.ErrInvalidConfig)
	}

	d.mutex.Lock()
	if d.state != StateIdle {
		d.mutex.Unlock()
		return fmt.Errorf("%w: device is %s", pkg.ErrInvalidState, d.state)
	}
	d.driver = drv
	d.mutex.Unlock()

	if err := drv.Bind(d); err != nil {
		d.mutex.Lock()
		d.driver = nil
		d.mutex.Unlock()
		pkg.LogError(pkg.ComponentDevice, "driver bind failed",
			"driver", drv.Name(),
			"error", err)
		return err
	}
	d.setState(StateBound)

	img, err := d.Image()
	if err == nil {
		err = d.controller.Attach(ctx, img)
	}
	if err != nil {
		pkg.LogError(pkg.ComponentDevice, "publish failed",
			"driver", drv.Name(),
			"controller", d.controller.Name(),
			"error", err)
		if uerr := drv.Unbind(d); uerr != nil {
			pkg.LogWarn(pkg.ComponentDevice, "driver unbind failed", "error", uerr)
		}
		d.dropConfigs()
		d.mutex.Lock()
		d.driver = nil
		d.state = StateIdle
		d.mutex.Unlock()
		return fmt.Errorf("publish %s: %w", drv.Name(), err)
	}
	d.setState(StatePublished)

	pkg.LogInfo(pkg.ComponentDevice, "device published",
		"driver", drv.Name(),
		"controller", d.controller.Name(),
		"configurations", len(img.Configurations))

	return nil
}

// Unregister withdraws the device from the controller and unbinds the
// driver. Calling Unregister on an idle device is a no-op.
func (d *Device) Unregister() error {
	d.mutex.Lock()
	state := d.state
	drv := d.driver
	d.mutex.Unlock()

	if state == StateIdle {
		return nil
	}

	var errs []error
	if state == StatePublished {
		if err := d.controller.Detach(); err != nil {
			errs = append(errs, fmt.Errorf("detach: %w", err))
		}
	}
	if err := drv.Unbind(d); err != nil {
		errs = append(errs, fmt.Errorf("unbind %s: %w", drv.Name(), err))
	}
	d.dropConfigs()

	d.mutex.Lock()
	d.driver = nil
	d.state = StateIdle
	d.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentDevice, "device unregistered", "driver", drv.Name())
	return errors.Join(errs...)
}

// dropConfigs removes configurations a driver failed to remove itself.
func (d *Device) dropConfigs() {
	for _, c := range d.Configurations() {
		pkg.LogWarn(pkg.ComponentDevice, "driver left configuration registered",
			"config", c.Value)
		if err := d.RemoveConfig(c); err != nil {
			pkg.LogWarn(pkg.ComponentDevice, "configuration removal failed",
				"config", c.Value,
				"error", err)
		}
	}
}

func (d *Device) setState(state State) {
	d.mutex.Lock()
	old := d.state
	d.state = state
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentDevice, "state change",
		"from", old.String(),
		"to", state.String())
}
