package device

import (
	"fmt"
	"math/bits"
	"slices"
	"sync"

	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// Configuration represents a USB device configuration and the functions
// attached to it.
type Configuration struct {
	// Descriptor data
	Label       string // Human-readable label, used in logs
	Value       uint8  // Configuration value for SET_CONFIGURATION
	Attributes  uint8  // Configuration attributes (bus/self powered, remote wakeup)
	MaxPower    uint8  // Maximum power consumption (2mA units)
	StringIndex uint8  // String descriptor index

	// Descriptors are extra descriptors emitted right after the
	// configuration header (e.g. the OTG descriptor).
	Descriptors [][]byte

	dev       *Device
	functions []Function

	// Interfaces - fixed-size array for zero allocation
	interfaces     [MaxInterfacesPerConfiguration]*Interface
	interfaceCount int

	// Claimed endpoint numbers, bit n set when endpoint n is in use
	usedIn  uint16
	usedOut uint16

	mutex sync.RWMutex
}

// NewConfiguration creates a new, empty configuration.
func NewConfiguration(label string, value uint8) *Configuration {
	return &Configuration{
		Label:      label,
		Value:      value,
		Attributes: ConfigAttrBusPowered,
		MaxPower:   1, // 2mA, the minimum for a self-powered gadget
	}
}

// Device returns the device the configuration was added to, or nil.
func (c *Configuration) Device() *Device {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.dev
}

// AddFunction binds f into the configuration. The function allocates its
// interfaces and endpoints from c during Bind.
//
// Returns pkg.ErrAlreadyAttached if f is already part of a configuration.
// If Bind fails, every interface and endpoint f allocated is released
// before returning.
func (c *Configuration) AddFunction(f Function) error {
	if f == nil {
		return fmt.Errorf("%w: nil function", pkg.ErrInvalidConfig)
	}

	c.mutex.RLock()
	dev := c.dev
	attached := slices.Contains(c.functions, f)
	c.mutex.RUnlock()

	if attached {
		return fmt.Errorf("%w: %s", pkg.ErrAlreadyAttached, f.Name())
	}
	if dev != nil {
		if err := dev.markAttached(f, c); err != nil {
			return err
		}
	}

	// Bind outside the lock: the function calls back into AllocInterface
	// and AllocEndpoint.
	if err := f.Bind(c); err != nil {
		c.release(f)
		if dev != nil {
			dev.markDetached(f)
		}
		pkg.LogDebug(pkg.ComponentDevice, "function bind failed",
			"config", c.Value,
			"function", f.Name(),
			"error", err)
		return fmt.Errorf("bind %s: %w", f.Name(), err)
	}

	c.mutex.Lock()
	c.functions = append(c.functions, f)
	c.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentDevice, "function added to configuration",
		"config", c.Value,
		"function", f.Name())

	return nil
}

// RemoveFunction unbinds f and releases its interfaces and endpoints.
func (c *Configuration) RemoveFunction(f Function) error {
	c.mutex.Lock()
	idx := slices.Index(c.functions, f)
	if idx < 0 {
		c.mutex.Unlock()
		return fmt.Errorf("%w: function not in configuration %d", pkg.ErrInvalidState, c.Value)
	}
	c.functions = slices.Delete(c.functions, idx, idx+1)
	dev := c.dev
	c.mutex.Unlock()

	f.Unbind(c)
	c.release(f)
	if dev != nil {
		dev.markDetached(f)
	}

	pkg.LogDebug(pkg.ComponentDevice, "function removed from configuration",
		"config", c.Value,
		"function", f.Name())

	return nil
}

// Functions returns the attached functions in attach order.
func (c *Configuration) Functions() []Function {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return slices.Clone(c.functions)
}

// AllocInterface allocates the next free interface number for f.
func (c *Configuration) AllocInterface(f Function, class, subClass, protocol uint8) (*Interface, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.interfaceCount >= MaxInterfacesPerConfiguration {
		return nil, fmt.Errorf("%w: interfaces in configuration %d",
			pkg.ErrResourceExhausted, c.Value)
	}

	iface := &Interface{
		Number:   c.nextInterfaceNumber(),
		Class:    class,
		SubClass: subClass,
		Protocol: protocol,
		owner:    f,
	}
	c.interfaces[c.interfaceCount] = iface
	c.interfaceCount++

	pkg.LogDebug(pkg.ComponentDevice, "interface allocated",
		"config", c.Value,
		"interface", iface.Number,
		"class", class)

	return iface, nil
}

// nextInterfaceNumber returns the lowest interface number not in use.
// Must be called with the mutex held.
func (c *Configuration) nextInterfaceNumber() uint8 {
	var used [MaxInterfacesPerConfiguration]bool
	for idx := 0; idx < c.interfaceCount; idx++ {
		used[c.interfaces[idx].Number] = true
	}
	for n := range used {
		if !used[n] {
			return uint8(n)
		}
	}
	return uint8(c.interfaceCount)
}

// AllocEndpoint claims the lowest free endpoint number in the given
// direction and adds the endpoint to iface.
//
// Returns pkg.ErrBandwidthExceeded when the controller has no endpoint
// number left in that direction.
func (c *Configuration) AllocEndpoint(iface *Interface, direction, transferType uint8, maxPacketSize uint16, interval uint8) (*Endpoint, error) {
	if iface == nil {
		return nil, fmt.Errorf("%w: nil interface", pkg.ErrInvalidConfig)
	}

	c.mutex.Lock()
	limit := c.endpointLimit()
	used := &c.usedOut
	if direction&EndpointDirectionIn != 0 {
		direction = EndpointDirectionIn
		used = &c.usedIn
	}

	var num uint8
	for n := uint8(1); int(n) <= limit; n++ {
		if *used&(1<<n) == 0 {
			num = n
			break
		}
	}
	if num == 0 {
		c.mutex.Unlock()
		return nil, fmt.Errorf("%w: no %s endpoint left for interface %d",
			pkg.ErrBandwidthExceeded, directionName(direction), iface.Number)
	}
	*used |= 1 << num
	c.mutex.Unlock()

	ep := &Endpoint{
		Address:       num | direction,
		Attributes:    transferType & 0x03,
		MaxPacketSize: maxPacketSize,
		Interval:      interval,
	}
	if err := iface.addEndpoint(ep); err != nil {
		c.mutex.Lock()
		*used &^= 1 << num
		c.mutex.Unlock()
		return nil, err
	}
	return ep, nil
}

// endpointLimit returns the highest endpoint number available per
// direction. Must be called with the mutex held.
func (c *Configuration) endpointLimit() int {
	if c.dev == nil || c.dev.controller == nil {
		return MaxEndpointNumber
	}
	return min(c.dev.controller.Endpoints(), MaxEndpointNumber)
}

// Speed returns the maximum speed of the controller the configuration
// will be published on, or hal.SpeedFull when there is none.
func (c *Configuration) Speed() hal.Speed {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.dev == nil || c.dev.controller == nil {
		return hal.SpeedFull
	}
	return c.dev.controller.MaxSpeed()
}

// release drops every interface owned by f and frees its endpoint numbers.
func (c *Configuration) release(f Function) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	kept := 0
	for idx := 0; idx < c.interfaceCount; idx++ {
		iface := c.interfaces[idx]
		if iface.owner != f {
			c.interfaces[kept] = iface
			kept++
			continue
		}
		for _, ep := range iface.Endpoints() {
			if ep.IsIn() {
				c.usedIn &^= 1 << ep.Number()
			} else {
				c.usedOut &^= 1 << ep.Number()
			}
		}
	}
	for idx := kept; idx < c.interfaceCount; idx++ {
		c.interfaces[idx] = nil
	}
	c.interfaceCount = kept
}

// reset drops every function, interface and endpoint claim.
func (c *Configuration) reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for idx := 0; idx < c.interfaceCount; idx++ {
		c.interfaces[idx] = nil
	}
	c.interfaceCount = 0
	c.usedIn, c.usedOut = 0, 0
	c.functions = nil
}

// GetInterface returns the interface with the given number.
func (c *Configuration) GetInterface(number uint8) *Interface {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for idx := 0; idx < c.interfaceCount; idx++ {
		if c.interfaces[idx].Number == number {
			return c.interfaces[idx]
		}
	}
	return nil
}

// Interfaces returns all interfaces in the configuration.
func (c *Configuration) Interfaces() []*Interface {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return slices.Clone(c.interfaces[:c.interfaceCount])
}

// NumInterfaces returns the number of interfaces.
func (c *Configuration) NumInterfaces() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.interfaceCount
}

// NumEndpoints returns the number of claimed endpoints in both directions.
func (c *Configuration) NumEndpoints() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return bits.OnesCount16(c.usedIn) + bits.OnesCount16(c.usedOut)
}

// Descriptor returns the configuration descriptor header.
func (c *Configuration) Descriptor() *ConfigurationDescriptor {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.descriptor()
}

func (c *Configuration) descriptor() *ConfigurationDescriptor {
	return &ConfigurationDescriptor{
		TotalLength:        uint16(c.totalLength()),
		NumInterfaces:      uint8(c.interfaceCount),
		ConfigurationValue: c.Value,
		ConfigurationIndex: c.StringIndex,
		Attributes:         c.Attributes,
		MaxPower:           c.MaxPower,
	}
}

// totalLength calculates the total configuration descriptor length.
func (c *Configuration) totalLength() int {
	length := ConfigurationDescriptorSize
	for _, d := range c.Descriptors {
		length += len(d)
	}
	for idx := 0; idx < c.interfaceCount; idx++ {
		length += c.interfaces[idx].descriptorLength()
	}
	return length
}

// MarshalTo writes the full configuration descriptor including all
// sub-descriptors to buf. Returns the number of bytes written, or 0 if buf
// is too small.
func (c *Configuration) MarshalTo(buf []byte) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.totalLength()
	if len(buf) < total {
		return 0
	}

	offset := c.descriptor().MarshalTo(buf)
	for _, d := range c.Descriptors {
		offset += copy(buf[offset:], d)
	}
	for idx := 0; idx < c.interfaceCount; idx++ {
		offset += c.interfaces[idx].marshalTo(buf[offset:])
	}
	return offset
}

// Bytes returns the serialized configuration descriptor set.
func (c *Configuration) Bytes() ([]byte, error) {
	c.mutex.RLock()
	total := c.totalLength()
	c.mutex.RUnlock()

	if total > MaxConfigurationSize {
		return nil, fmt.Errorf("%w: configuration %d is %d bytes",
			pkg.ErrResourceExhausted, c.Value, total)
	}
	buf := make([]byte, total)
	n := c.MarshalTo(buf)
	return buf[:n], nil
}

// SetSelfPowered sets or clears the self-powered attribute.
func (c *Configuration) SetSelfPowered(selfPowered bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if selfPowered {
		c.Attributes |= ConfigAttrSelfPowered
	} else {
		c.Attributes &^= ConfigAttrSelfPowered
	}
}

// IsSelfPowered returns true if the configuration is self-powered.
func (c *Configuration) IsSelfPowered() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.Attributes&ConfigAttrSelfPowered != 0
}

// SetRemoteWakeup sets or clears the remote wakeup capability.
func (c *Configuration) SetRemoteWakeup(enabled bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if enabled {
		c.Attributes |= ConfigAttrRemoteWakeup
	} else {
		c.Attributes &^= ConfigAttrRemoteWakeup
	}
}

// SupportsRemoteWakeup returns true if remote wakeup is supported.
func (c *Configuration) SupportsRemoteWakeup() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.Attributes&ConfigAttrRemoteWakeup != 0
}

func directionName(direction uint8) string {
	if direction&EndpointDirectionIn != 0 {
		return "IN"
	}
	return "OUT"
}
