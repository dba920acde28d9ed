package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// DefaultEndpoints is the endpoint budget per direction when none is given.
const DefaultEndpoints = 15

// Connection signal bytes (one-way signaling to host).
const (
	sigConnect    = 0x01 // Gadget attached
	sigDisconnect = 0x00 // Gadget detached
)

// Spool file names.
const (
	fileConnection = "connection"
	fileDevice     = "device.desc"
	fileOTG        = "otg.desc"
	dirStrings     = "strings"
)

// Option configures a Controller.
type Option func(*Controller)

// WithOTG marks the controller as dual-role capable.
func WithOTG(otg bool) Option {
	return func(c *Controller) { c.otg = otg }
}

// WithSpeed sets the maximum speed the controller reports.
func WithSpeed(speed hal.Speed) Option {
	return func(c *Controller) { c.speed = speed }
}

// WithEndpoints sets the number of endpoint numbers per direction.
func WithEndpoints(n int) Option {
	return func(c *Controller) { c.endpoints = n }
}

// Controller implements hal.Controller by spooling the descriptor image
// into a per-attach directory.
type Controller struct {
	// Bus directory (root directory shared with host)
	busDir string

	// Gadget subdirectory (busDir/gadget-{uuid}/), set while attached
	gadgetDir string
	id        uuid.UUID

	otg       bool
	speed     hal.Speed
	endpoints int

	attached bool
	mutex    sync.Mutex
}

var _ hal.Controller = (*Controller)(nil)

// New creates a spool controller writing beneath busDir.
func New(busDir string, opts ...Option) *Controller {
	c := &Controller{
		busDir:    busDir,
		speed:     hal.SpeedHigh,
		endpoints: DefaultEndpoints,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the controller identifier.
func (c *Controller) Name() string {
	return "spool"
}

// IsOTG reports whether the controller was created dual-role capable.
func (c *Controller) IsOTG() bool {
	return c.otg
}

// MaxSpeed returns the configured maximum speed.
func (c *Controller) MaxSpeed() hal.Speed {
	return c.speed
}

// Endpoints returns the endpoint budget per direction.
func (c *Controller) Endpoints() int {
	return c.endpoints
}

// GadgetDir returns the directory of the current attach, or "" when
// detached.
func (c *Controller) GadgetDir() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.gadgetDir
}

// Attached reports whether an image is currently published.
func (c *Controller) Attached() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.attached
}

// Attach writes img to a fresh gadget directory and signals connection.
func (c *Controller) Attach(ctx context.Context, img *hal.Image) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.attached {
		return fmt.Errorf("%w: controller already attached", pkg.ErrInvalidState)
	}
	if img == nil || len(img.Device) == 0 {
		return fmt.Errorf("%w: empty descriptor image", pkg.ErrInvalidConfig)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("generate uuid: %w", err)
	}
	dir := filepath.Join(c.busDir, "gadget-"+id.String())

	if err := writeImage(dir, img); err != nil {
		os.RemoveAll(dir)
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, fileConnection), []byte{sigConnect}, 0o644); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("signal connection: %w", err)
	}

	c.id = id
	c.gadgetDir = dir
	c.attached = true

	pkg.LogInfo(pkg.ComponentHAL, "gadget attached",
		"dir", dir,
		"configs", len(img.Configurations),
		"otg", img.OTG != nil)
	return nil
}

// Detach signals disconnection and removes the gadget directory.
func (c *Controller) Detach() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.attached {
		return pkg.ErrNotConnected
	}

	// Signal disconnection to host before the directory goes away
	conn := filepath.Join(c.gadgetDir, fileConnection)
	if err := os.WriteFile(conn, []byte{sigDisconnect}, 0o644); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal disconnection", "error", err)
	}
	err := os.RemoveAll(c.gadgetDir)

	pkg.LogInfo(pkg.ComponentHAL, "gadget detached", "dir", c.gadgetDir)
	c.gadgetDir = ""
	c.id = uuid.Nil
	c.attached = false

	if err != nil {
		return fmt.Errorf("remove gadget dir: %w", err)
	}
	return nil
}

func writeImage(dir string, img *hal.Image) error {
	if err := os.MkdirAll(filepath.Join(dir, dirStrings), 0o755); err != nil {
		return fmt.Errorf("create gadget dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fileDevice), img.Device, 0o644); err != nil {
		return fmt.Errorf("write device descriptor: %w", err)
	}
	for i, cfg := range img.Configurations {
		name := fmt.Sprintf("config-%d.desc", i+1)
		if err := os.WriteFile(filepath.Join(dir, name), cfg, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	for id, s := range img.Strings {
		if s == nil {
			continue
		}
		name := fmt.Sprintf("%02d.desc", id)
		if err := os.WriteFile(filepath.Join(dir, dirStrings, name), s, 0o644); err != nil {
			return fmt.Errorf("write string %d: %w", id, err)
		}
	}
	if img.OTG != nil {
		if err := os.WriteFile(filepath.Join(dir, fileOTG), img.OTG, 0o644); err != nil {
			return fmt.Errorf("write otg descriptor: %w", err)
		}
	}
	return nil
}
