package msc

import "strings"

// Inquiry is the identification a logical unit reports in its standard
// INQUIRY data.
type Inquiry struct {
	DeviceType uint8
	Removable  bool
	Vendor     string // Up to 8 bytes
	Product    string // Up to 16 bytes
	Revision   string // Up to 4 bytes
}

func newInquiry(lun *LUN, vendor, product string) Inquiry {
	q := Inquiry{
		DeviceType: DeviceTypeDisk,
		Removable:  lun.Removable,
		Vendor:     DefaultVendor,
		Product:    DefaultProduct,
		Revision:   DefaultRevision,
	}
	if lun.CDROM {
		q.DeviceType = DeviceTypeCDROM
		q.Product = DefaultCDROMProduct
	}
	if vendor != "" {
		q.Vendor = truncate(vendor, 8)
	}
	if product != "" {
		q.Product = truncate(product, 16)
	}
	return q
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Bytes encodes the standard INQUIRY data. Identification fields are
// padded with spaces.
func (q Inquiry) Bytes() []byte {
	buf := make([]byte, InquiryStandardSize)
	buf[0] = q.DeviceType
	if q.Removable {
		buf[1] = InquiryRMB
	}
	buf[2] = InquiryVersionSPC4
	buf[3] = InquiryResponseFormatSPC
	buf[4] = InquiryStandardSize - 5

	field := func(b []byte, s string) {
		copy(b, s+strings.Repeat(" ", len(b)))
	}
	field(buf[8:16], q.Vendor)
	field(buf[16:32], q.Product)
	field(buf[32:36], q.Revision)
	return buf
}
