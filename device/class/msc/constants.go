package msc

// MSC Subclass codes.
const (
	SubclassRBC  = 0x01 // Reduced Block Commands
	SubclassMMC5 = 0x02 // Multi-Media Commands (CD/DVD)
	SubclassSCSI = 0x06 // SCSI Transparent Command Set
)

// MSC Protocol codes.
const (
	ProtocolBulkOnly = 0x50 // Bulk-Only Transport (BOT)
)

// SCSI device types (peripheral device type).
const (
	DeviceTypeDisk  = 0x00 // Direct access block device (disk)
	DeviceTypeCDROM = 0x05 // CD-ROM device
)

// INQUIRY response constants.
const (
	InquiryStandardSize      = 36   // Standard INQUIRY data length
	InquiryVersionSPC4       = 0x06 // SPC-4 version
	InquiryResponseFormatSPC = 0x02 // SPC-compliant response format
	InquiryRMB               = 0x80 // Removable media bit
)

// Block sizes.
const (
	DefaultBlockSize = 512  // Disk sector size
	CDROMBlockSize   = 2048 // CD-ROM sector size
)

// Buffer pipeline limits.
const (
	MinBuffers = 2     // Double buffering is the minimum pipeline
	MaxBuffers = 32    // Upper bound on pipeline depth
	BufferSize = 16384 // Size of each pipeline buffer
)

// MaxLUNs is the maximum number of logical units per mass-storage function.
const MaxLUNs = 16

// Bulk endpoint packet sizes.
const (
	FullSpeedPacketSize = 64
	HighSpeedPacketSize = 512
)

// Default INQUIRY identification strings.
const (
	DefaultVendor       = "Linux"
	DefaultProduct      = "File-Stor Gadget"
	DefaultCDROMProduct = "File-CD Gadget"
	DefaultRevision     = "0100"
)
