package device

import (
	"sync"

	"github.com/ardnew/softgadget/pkg"
)

// Interface represents a USB interface allocated by a function within a
// configuration.
type Interface struct {
	// Descriptor data
	Number           uint8 // Interface number
	AlternateSetting uint8 // Alternate setting
	Class            uint8 // Interface class
	SubClass         uint8 // Interface subclass
	Protocol         uint8 // Interface protocol
	StringIndex      uint8 // String descriptor index

	// Association, when set, is emitted immediately before this interface.
	Association *InterfaceAssociationDescriptor

	// ClassDescriptors are class-specific descriptors emitted between the
	// interface descriptor and its endpoints (HID, CDC functional).
	ClassDescriptors []byte

	// Endpoints (excluding EP0) - fixed-size array for zero allocation
	endpoints     [MaxEndpointsPerInterface]*Endpoint
	endpointCount int
	mutex         sync.RWMutex

	owner Function
}

// addEndpoint adds an endpoint to the interface.
func (i *Interface) addEndpoint(ep *Endpoint) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if i.endpointCount >= MaxEndpointsPerInterface {
		return pkg.ErrResourceExhausted
	}

	// Check for duplicate address
	for idx := 0; idx < i.endpointCount; idx++ {
		if i.endpoints[idx].Address == ep.Address {
			return pkg.ErrInvalidState
		}
	}

	i.endpoints[i.endpointCount] = ep
	i.endpointCount++

	pkg.LogDebug(pkg.ComponentDevice, "endpoint added to interface",
		"interface", i.Number,
		"endpoint", ep.String())

	return nil
}

// GetEndpoint returns the endpoint with the given address.
func (i *Interface) GetEndpoint(address uint8) *Endpoint {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	for idx := 0; idx < i.endpointCount; idx++ {
		if i.endpoints[idx].Address == address {
			return i.endpoints[idx]
		}
	}
	return nil
}

// Endpoints returns all endpoints in the interface.
// The returned slice references internal storage; do not modify.
func (i *Interface) Endpoints() []*Endpoint {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.endpoints[:i.endpointCount]
}

// NumEndpoints returns the number of endpoints in the interface.
func (i *Interface) NumEndpoints() int {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.endpointCount
}

// Owner returns the function that allocated the interface.
func (i *Interface) Owner() Function {
	return i.owner
}

// Descriptor returns the interface descriptor.
func (i *Interface) Descriptor() *InterfaceDescriptor {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return &InterfaceDescriptor{
		InterfaceNumber:   i.Number,
		AlternateSetting:  i.AlternateSetting,
		NumEndpoints:      uint8(i.endpointCount),
		InterfaceClass:    i.Class,
		InterfaceSubClass: i.SubClass,
		InterfaceProtocol: i.Protocol,
		InterfaceIndex:    i.StringIndex,
	}
}

// descriptorLength returns the number of bytes the interface contributes
// to the configuration descriptor set.
func (i *Interface) descriptorLength() int {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	length := InterfaceDescriptorSize + len(i.ClassDescriptors) +
		i.endpointCount*EndpointDescriptorSize
	if i.Association != nil {
		length += IADSize
	}
	return length
}

// marshalTo writes the IAD (if any), interface descriptor, class-specific
// descriptors and endpoint descriptors to buf.
func (i *Interface) marshalTo(buf []byte) int {
	if len(buf) < i.descriptorLength() {
		return 0
	}

	offset := 0
	if i.Association != nil {
		offset += i.Association.MarshalTo(buf[offset:])
	}
	offset += i.Descriptor().MarshalTo(buf[offset:])
	offset += copy(buf[offset:], i.ClassDescriptors)
	for _, ep := range i.Endpoints() {
		offset += ep.Descriptor().MarshalTo(buf[offset:])
	}
	return offset
}
