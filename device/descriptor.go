package device

import (
	"encoding/binary"
	"unicode/utf16"
)

// USB Descriptor Types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeOTG                  = 0x09
	DescriptorTypeInterfaceAssociation = 0x0B
	DescriptorTypeCSInterface          = 0x24
	DescriptorTypeCSEndpoint           = 0x25
)

// USB Class Codes used by the composite functions.
const (
	ClassPerInterface = 0x00
	ClassCDC          = 0x02
	ClassHID          = 0x03
	ClassMassStorage  = 0x08
	ClassCDCData      = 0x0A
	ClassMisc         = 0xEF
)

// Descriptor sizes in bytes.
const (
	DeviceDescriptorSize        = 18
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
	IADSize                     = 8
	OTGDescriptorSize           = 5
)

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80 // Reserved, must be set
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// OTG attribute bits.
const (
	OTGAttrSRP = 0x01 // Session request protocol
	OTGAttrHNP = 0x02 // Host negotiation protocol
	OTGAttrADP = 0x04 // Attach detection protocol
)

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// DeviceDescriptor represents a USB device descriptor.
type DeviceDescriptor struct {
	USBVersion        uint16 // BCD
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16 // BCD
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// MarshalTo serializes the device descriptor to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceDescriptorSize {
		return 0
	}
	buf[0] = DeviceDescriptorSize
	buf[1] = DescriptorTypeDevice
	binary.LittleEndian.PutUint16(buf[2:4], d.USBVersion)
	buf[4] = d.DeviceClass
	buf[5] = d.DeviceSubClass
	buf[6] = d.DeviceProtocol
	buf[7] = d.MaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(buf[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(buf[12:14], d.DeviceVersion)
	buf[14] = d.ManufacturerIndex
	buf[15] = d.ProductIndex
	buf[16] = d.SerialNumberIndex
	buf[17] = d.NumConfigurations
	return DeviceDescriptorSize
}

// ConfigurationDescriptor represents a USB configuration descriptor header.
type ConfigurationDescriptor struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8 // 2mA units
}

// MarshalTo serializes the configuration descriptor header to buf.
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ConfigurationDescriptorSize {
		return 0
	}
	buf[0] = ConfigurationDescriptorSize
	buf[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(buf[2:4], c.TotalLength)
	buf[4] = c.NumInterfaces
	buf[5] = c.ConfigurationValue
	buf[6] = c.ConfigurationIndex
	buf[7] = c.Attributes
	buf[8] = c.MaxPower
	return ConfigurationDescriptorSize
}

// InterfaceDescriptor represents a USB interface descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// MarshalTo serializes the interface descriptor to buf.
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceDescriptorSize {
		return 0
	}
	buf[0] = InterfaceDescriptorSize
	buf[1] = DescriptorTypeInterface
	buf[2] = i.InterfaceNumber
	buf[3] = i.AlternateSetting
	buf[4] = i.NumEndpoints
	buf[5] = i.InterfaceClass
	buf[6] = i.InterfaceSubClass
	buf[7] = i.InterfaceProtocol
	buf[8] = i.InterfaceIndex
	return InterfaceDescriptorSize
}

// EndpointDescriptor represents a USB endpoint descriptor.
type EndpointDescriptor struct {
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// MarshalTo serializes the endpoint descriptor to buf.
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EndpointDescriptorSize {
		return 0
	}
	buf[0] = EndpointDescriptorSize
	buf[1] = DescriptorTypeEndpoint
	buf[2] = e.EndpointAddress
	buf[3] = e.Attributes
	binary.LittleEndian.PutUint16(buf[4:6], e.MaxPacketSize)
	buf[6] = e.Interval
	return EndpointDescriptorSize
}

// InterfaceAssociationDescriptor groups contiguous interfaces into one
// function (e.g. CDC control + data).
type InterfaceAssociationDescriptor struct {
	FirstInterface   uint8
	InterfaceCount   uint8
	FunctionClass    uint8
	FunctionSubClass uint8
	FunctionProtocol uint8
	FunctionIndex    uint8
}

// MarshalTo serializes the IAD to buf.
func (i *InterfaceAssociationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < IADSize {
		return 0
	}
	buf[0] = IADSize
	buf[1] = DescriptorTypeInterfaceAssociation
	buf[2] = i.FirstInterface
	buf[3] = i.InterfaceCount
	buf[4] = i.FunctionClass
	buf[5] = i.FunctionSubClass
	buf[6] = i.FunctionProtocol
	buf[7] = i.FunctionIndex
	return IADSize
}

// OTGDescriptor advertises on-the-go capabilities of a dual-role controller.
type OTGDescriptor struct {
	Attributes uint8
	OTGVersion uint16 // BCD
}

// MarshalTo serializes the OTG descriptor to buf.
func (o *OTGDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < OTGDescriptorSize {
		return 0
	}
	buf[0] = OTGDescriptorSize
	buf[1] = DescriptorTypeOTG
	buf[2] = o.Attributes
	binary.LittleEndian.PutUint16(buf[3:5], o.OTGVersion)
	return OTGDescriptorSize
}

// Bytes returns the serialized OTG descriptor.
func (o *OTGDescriptor) Bytes() []byte {
	var buf [OTGDescriptorSize]byte
	n := o.MarshalTo(buf[:])
	return buf[:n]
}

// StringDescriptorTo writes s as a UTF-16LE USB string descriptor to buf.
// Strings longer than the 255-byte descriptor limit are truncated.
// Returns the number of bytes written, or 0 if buf is too small.
func StringDescriptorTo(buf []byte, s string) int {
	units := utf16.Encode([]rune(s))
	if limit := (255 - 2) / 2; len(units) > limit {
		units = units[:limit]
	}
	length := 2 + len(units)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2+i*2:], u)
	}
	return length
}

// LanguageDescriptorTo writes the language ID string descriptor (index 0).
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	length := 2 + len(langIDs)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+i*2:], id)
	}
	return length
}
