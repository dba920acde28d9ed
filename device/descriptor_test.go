package device

import (
	"bytes"
	"testing"
)

func TestDeviceDescriptor_MarshalTo(t *testing.T) {
	desc := &DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       ClassMisc,
		DeviceSubClass:    0x02,
		DeviceProtocol:    0x01,
		MaxPacketSize0:    64,
		VendorID:          0x0525,
		ProductID:         0xA4A5,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}

	var buf [18]byte
	n := desc.MarshalTo(buf[:])
	if n != 18 {
		t.Fatalf("expected 18 bytes, got %d", n)
	}

	want := []byte{
		18, DescriptorTypeDevice, 0x00, 0x02,
		ClassMisc, 0x02, 0x01, 64,
		0x25, 0x05, 0xA5, 0xA4, 0x00, 0x01,
		1, 2, 3, 1,
	}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % X, want % X", buf[:], want)
	}
}

func TestDescriptor_MarshalToShortBuffer(t *testing.T) {
	tests := []struct {
		name    string
		marshal func([]byte) int
		size    int
	}{
		{"device", (&DeviceDescriptor{}).MarshalTo, DeviceDescriptorSize},
		{"configuration", (&ConfigurationDescriptor{}).MarshalTo, ConfigurationDescriptorSize},
		{"interface", (&InterfaceDescriptor{}).MarshalTo, InterfaceDescriptorSize},
		{"endpoint", (&EndpointDescriptor{}).MarshalTo, EndpointDescriptorSize},
		{"iad", (&InterfaceAssociationDescriptor{}).MarshalTo, IADSize},
		{"otg", (&OTGDescriptor{}).MarshalTo, OTGDescriptorSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size-1)
			if n := tt.marshal(buf); n != 0 {
				t.Errorf("MarshalTo() on short buffer = %d, want 0", n)
			}
			buf = make([]byte, tt.size)
			if n := tt.marshal(buf); n != tt.size {
				t.Errorf("MarshalTo() = %d, want %d", n, tt.size)
			}
			if buf[0] != byte(tt.size) {
				t.Errorf("bLength = %d, want %d", buf[0], tt.size)
			}
		})
	}
}

func TestConfigurationDescriptor_MarshalTo(t *testing.T) {
	desc := &ConfigurationDescriptor{
		TotalLength:        0x0123,
		NumInterfaces:      3,
		ConfigurationValue: 1,
		Attributes:         ConfigAttrBusPowered | ConfigAttrSelfPowered,
		MaxPower:           1,
	}

	var buf [9]byte
	desc.MarshalTo(buf[:])

	want := []byte{9, DescriptorTypeConfiguration, 0x23, 0x01, 3, 1, 0, 0xC0, 1}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % X, want % X", buf[:], want)
	}
}

func TestEndpointDescriptor_MarshalTo(t *testing.T) {
	desc := &EndpointDescriptor{
		EndpointAddress: 0x81,
		Attributes:      EndpointTypeInterrupt,
		MaxPacketSize:   8,
		Interval:        10,
	}

	var buf [7]byte
	desc.MarshalTo(buf[:])

	want := []byte{7, DescriptorTypeEndpoint, 0x81, 0x03, 8, 0, 10}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % X, want % X", buf[:], want)
	}
}

func TestOTGDescriptor_Bytes(t *testing.T) {
	otg := &OTGDescriptor{Attributes: OTGAttrSRP | OTGAttrHNP, OTGVersion: 0x0200}

	want := []byte{5, DescriptorTypeOTG, 0x03, 0x00, 0x02}
	if got := otg.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = % X, want % X", got, want)
	}
}

func TestStringDescriptorTo(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want []byte
	}{
		{"empty", "", []byte{2, DescriptorTypeString}},
		{"ascii", "Hi", []byte{6, DescriptorTypeString, 'H', 0, 'i', 0}},
		{"bmp", "é", []byte{4, DescriptorTypeString, 0xE9, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [255]byte
			n := StringDescriptorTo(buf[:], tt.s)
			if !bytes.Equal(buf[:n], tt.want) {
				t.Errorf("StringDescriptorTo() = % X, want % X", buf[:n], tt.want)
			}
		})
	}
}

func TestStringDescriptorTo_Truncates(t *testing.T) {
	var buf [255]byte
	n := StringDescriptorTo(buf[:], string(bytes.Repeat([]byte{'x'}, 300)))
	if n != 254 {
		t.Fatalf("StringDescriptorTo() = %d, want 254", n)
	}
	if buf[0] != 254 {
		t.Errorf("bLength = %d, want 254", buf[0])
	}
}

func TestStringDescriptorTo_ShortBuffer(t *testing.T) {
	var buf [4]byte
	if n := StringDescriptorTo(buf[:], "long string"); n != 0 {
		t.Errorf("StringDescriptorTo() = %d, want 0", n)
	}
}

func TestLanguageDescriptorTo(t *testing.T) {
	var buf [4]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)

	want := []byte{4, DescriptorTypeString, 0x09, 0x04}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("LanguageDescriptorTo() = % X, want % X", buf[:n], want)
	}
}
