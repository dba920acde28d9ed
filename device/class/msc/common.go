package msc

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softgadget/pkg"
)

// LUNConfig describes one logical unit.
type LUNConfig struct {
	Filename  string `mapstructure:"file" yaml:"file"`           // Backing file, empty for none
	ReadOnly  bool   `mapstructure:"ro" yaml:"ro"`               // Refuse writes
	Removable bool   `mapstructure:"removable" yaml:"removable"` // Medium may be ejected or absent
	CDROM     bool   `mapstructure:"cdrom" yaml:"cdrom"`         // Emulate a CD-ROM (implies ReadOnly)
	NoFUA     bool   `mapstructure:"nofua" yaml:"nofua"`         // Ignore the FUA bit on writes
	Size      uint64 `mapstructure:"size" yaml:"size"`           // In-memory medium size when Filename is empty
}

// LUN is an open logical unit.
type LUN struct {
	Index     int
	Storage   Storage
	ReadOnly  bool
	Removable bool
	CDROM     bool
	NoFUA     bool

	inquiry Inquiry
}

// Inquiry returns the unit's INQUIRY data.
func (l *LUN) Inquiry() Inquiry {
	return l.inquiry
}

// Filename returns the backing file path, or "" for memory-backed units.
func (l *LUN) Filename() string {
	if s, ok := l.Storage.(*MmapStorage); ok {
		return s.Path()
	}
	return ""
}

// openLUN creates the backing store for cfg.
func openLUN(index int, cfg LUNConfig) (*LUN, error) {
	lun := &LUN{
		Index:     index,
		ReadOnly:  cfg.ReadOnly || cfg.CDROM,
		Removable: cfg.Removable,
		CDROM:     cfg.CDROM,
		NoFUA:     cfg.NoFUA,
	}

	blockSize := uint32(DefaultBlockSize)
	if cfg.CDROM {
		blockSize = CDROMBlockSize
	}

	switch {
	case cfg.Filename != "":
		s, err := NewMmapStorage(cfg.Filename, blockSize, lun.ReadOnly, cfg.Removable)
		if err != nil {
			return nil, fmt.Errorf("LUN%d: %w", index, err)
		}
		lun.Storage = s

	case cfg.Size > 0:
		lun.Storage = NewMemoryStorage(cfg.Size, blockSize, lun.ReadOnly, cfg.Removable)

	case cfg.Removable:
		lun.Storage = NewEmptyStorage(blockSize)

	default:
		return nil, fmt.Errorf("%w: no file given for LUN%d", pkg.ErrInvalidConfig, index)
	}

	return lun, nil
}

// Common holds the state shared by every function produced from one
// mass-storage instance: the buffer pipeline, the stall policy, the
// logical units and the INQUIRY strings.
type Common struct {
	buffers  [][]byte
	canStall bool
	luns     []*LUN
	vendor   string
	product  string
	mutex    sync.RWMutex
}

// NewCommon creates an empty Common with stalling enabled.
func NewCommon() *Common {
	return &Common{canStall: true}
}

// SetNumBuffers allocates n pipeline buffers, replacing any previous set.
func (c *Common) SetNumBuffers(n int) error {
	if n < MinBuffers || n > MaxBuffers {
		return fmt.Errorf("%w: %d buffers (want %d..%d)", pkg.ErrInvalidConfig, n, MinBuffers, MaxBuffers)
	}

	buffers := make([][]byte, n)
	for i := range buffers {
		buffers[i] = make([]byte, BufferSize)
	}

	c.mutex.Lock()
	c.buffers = buffers
	c.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentFunction, "storage buffers allocated", "count", n)
	return nil
}

// FreeBuffers releases the pipeline buffers.
func (c *Common) FreeBuffers() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.buffers = nil
}

// NumBuffers returns the number of allocated pipeline buffers.
func (c *Common) NumBuffers() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.buffers)
}

// SetCanStall sets whether bulk endpoints may be halted to signal errors.
func (c *Common) SetCanStall(canStall bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.canStall = canStall
}

// CanStall reports the stall policy.
func (c *Common) CanStall() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.canStall
}

// CreateLUNs opens every logical unit in cfgs. Either all units are
// opened or none are.
func (c *Common) CreateLUNs(cfgs []LUNConfig) error {
	if len(cfgs) == 0 || len(cfgs) > MaxLUNs {
		return fmt.Errorf("%w: %d LUNs (want 1..%d)", pkg.ErrInvalidConfig, len(cfgs), MaxLUNs)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.luns) > 0 {
		return fmt.Errorf("%w: LUNs already created", pkg.ErrInvalidState)
	}

	luns := make([]*LUN, 0, len(cfgs))
	for i, cfg := range cfgs {
		lun, err := openLUN(i, cfg)
		if err != nil {
			closeLUNs(luns)
			return err
		}
		luns = append(luns, lun)
	}
	c.luns = luns
	c.applyInquiry()

	pkg.LogDebug(pkg.ComponentFunction, "LUNs created", "count", len(luns))
	return nil
}

// RemoveLUNs closes every logical unit.
func (c *Common) RemoveLUNs() error {
	c.mutex.Lock()
	luns := c.luns
	c.luns = nil
	c.mutex.Unlock()

	return closeLUNs(luns)
}

func closeLUNs(luns []*LUN) error {
	var errs []error
	for i := len(luns) - 1; i >= 0; i-- {
		if err := luns[i].Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LUN%d: %w", luns[i].Index, err))
		}
	}
	return errors.Join(errs...)
}

// LUNs returns the open logical units.
func (c *Common) LUNs() []*LUN {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return slices.Clone(c.luns)
}

// NumLUNs returns the number of open logical units.
func (c *Common) NumLUNs() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.luns)
}

// SetInquiryString sets the vendor and product identification reported
// by every unit. Empty strings select the defaults.
func (c *Common) SetInquiryString(vendor, product string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.vendor, c.product = vendor, product
	c.applyInquiry()
}

// applyInquiry rebuilds the INQUIRY data of every unit. Must be called
// with the mutex held.
func (c *Common) applyInquiry() {
	for _, lun := range c.luns {
		lun.inquiry = newInquiry(lun, c.vendor, c.product)
	}
}

// Close removes the units and frees the buffers.
func (c *Common) Close() error {
	err := c.RemoveLUNs()
	c.FreeBuffers()
	return err
}
