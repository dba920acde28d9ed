package cdc

import (
	"encoding/binary"

	"github.com/ardnew/softgadget/device"
)

// CDC functional descriptor subtypes.
const (
	SubtypeHeader         = 0x00 // Header Functional Descriptor
	SubtypeCallManagement = 0x01 // Call Management Functional Descriptor
	SubtypeACM            = 0x02 // Abstract Control Model Functional Descriptor
	SubtypeUnion          = 0x06 // Union Functional Descriptor
)

// CDC subclass codes.
const (
	SubclassNone = 0x00
	SubclassACM  = 0x02 // Abstract Control Model
)

// CDC protocol codes.
const (
	ProtocolNone = 0x00
	ProtocolAT   = 0x01 // AT Commands: V.250
)

// CDCVersion is the CDC release number reported in the header descriptor.
const CDCVersion = 0x0110

// Notification endpoint parameters.
const (
	NotifyMaxPacket = 10 // SERIAL_STATE notification size
	NotifyInterval  = 32 // Polling interval in frames
)

// Bulk endpoint packet sizes.
const (
	FullSpeedPacketSize = 64
	HighSpeedPacketSize = 512
)

// LineCoding represents the serial line configuration.
type LineCoding struct {
	DTERate    uint32 // Data terminal rate (baud rate)
	CharFormat uint8  // Stop bits: 0=1, 1=1.5, 2=2
	ParityType uint8  // Parity: 0=None, 1=Odd, 2=Even, 3=Mark, 4=Space
	DataBits   uint8  // Data bits: 5, 6, 7, 8, or 16
}

// LineCodingSize is the size of LineCoding in bytes.
const LineCodingSize = 7

// Stop bit values.
const (
	StopBits1   = 0 // 1 stop bit
	StopBits1_5 = 1 // 1.5 stop bits
	StopBits2   = 2 // 2 stop bits
)

// Parity values.
const (
	ParityNone  = 0
	ParityOdd   = 1
	ParityEven  = 2
	ParityMark  = 3
	ParitySpace = 4
)

// DefaultLineCoding is 9600 8N1.
var DefaultLineCoding = LineCoding{
	DTERate:    9600,
	CharFormat: StopBits1,
	ParityType: ParityNone,
	DataBits:   8,
}

// Valid reports whether lc holds values a host could request.
func (lc *LineCoding) Valid() bool {
	if lc.DTERate == 0 || lc.CharFormat > StopBits2 || lc.ParityType > ParitySpace {
		return false
	}
	switch lc.DataBits {
	case 5, 6, 7, 8, 16:
		return true
	}
	return false
}

// MarshalTo writes the LineCoding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	buf[0] = byte(lc.DTERate)
	buf[1] = byte(lc.DTERate >> 8)
	buf[2] = byte(lc.DTERate >> 16)
	buf[3] = byte(lc.DTERate >> 24)
	buf[4] = lc.CharFormat
	buf[5] = lc.ParityType
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses LineCoding from data.
// Returns false if data is too short.
func ParseLineCoding(data []byte, out *LineCoding) bool {
	if len(data) < LineCodingSize {
		return false
	}
	out.DTERate = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	out.CharFormat = data[4]
	out.ParityType = data[5]
	out.DataBits = data[6]
	return true
}

// Functional descriptor sizes.
const (
	HeaderDescriptorSize         = 5
	CallManagementDescriptorSize = 5
	ACMDescriptorSize            = 4
	UnionDescriptorSize          = 5
)

// FunctionalDescriptorsSize is the combined size of the functional
// descriptors emitted for an ACM control interface.
const FunctionalDescriptorsSize = HeaderDescriptorSize + CallManagementDescriptorSize +
	ACMDescriptorSize + UnionDescriptorSize

// Call management capability bits.
const (
	CallMgmtHandlesCallManagement = 1 << 0 // Device handles call management
	CallMgmtCallMgmtOverDataClass = 1 << 1 // Call management over Data Class interface
)

// ACM capability bits.
const (
	ACMCapCommFeature = 1 << 0 // Supports Set/Get/Clear Comm Feature
	ACMCapLineCoding  = 1 << 1 // Supports Set/Get Line Coding and Set Control Line State
	ACMCapSendBreak   = 1 << 2 // Supports Send Break
	ACMCapNetworkConn = 1 << 3 // Supports Network Connection notification
)

// FunctionalDescriptors holds the values of the header, call management,
// ACM and union functional descriptors of one ACM function.
type FunctionalDescriptors struct {
	CallCapabilities uint8 // Call management capabilities
	ACMCapabilities  uint8 // ACM capabilities
	ControlInterface uint8 // Union master (communications) interface
	DataInterface    uint8 // Union subordinate (data) interface
}

// MarshalTo writes the four descriptors to buf in the order the CDC
// specification requires.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *FunctionalDescriptors) MarshalTo(buf []byte) int {
	if len(buf) < FunctionalDescriptorsSize {
		return 0
	}

	// Header
	buf[0] = HeaderDescriptorSize
	buf[1] = device.DescriptorTypeCSInterface
	buf[2] = SubtypeHeader
	binary.LittleEndian.PutUint16(buf[3:5], CDCVersion)

	// Call management
	buf[5] = CallManagementDescriptorSize
	buf[6] = device.DescriptorTypeCSInterface
	buf[7] = SubtypeCallManagement
	buf[8] = d.CallCapabilities
	buf[9] = d.DataInterface

	// ACM
	buf[10] = ACMDescriptorSize
	buf[11] = device.DescriptorTypeCSInterface
	buf[12] = SubtypeACM
	buf[13] = d.ACMCapabilities

	// Union
	buf[14] = UnionDescriptorSize
	buf[15] = device.DescriptorTypeCSInterface
	buf[16] = SubtypeUnion
	buf[17] = d.ControlInterface
	buf[18] = d.DataInterface

	return FunctionalDescriptorsSize
}
