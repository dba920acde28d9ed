package gadget

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/class/cdc"
	"github.com/ardnew/softgadget/device/class/hid"
	"github.com/ardnew/softgadget/device/class/msc"
	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// fakeController records what the device publishes.
type fakeController struct {
	otg         bool
	endpoints   int
	attachErr   error
	attached    bool
	image       *hal.Image
	detachCalls int
}

func (c *fakeController) Name() string        { return "fake" }
func (c *fakeController) IsOTG() bool         { return c.otg }
func (c *fakeController) MaxSpeed() hal.Speed { return hal.SpeedHigh }
func (c *fakeController) Endpoints() int      { return c.endpoints }

func (c *fakeController) Attach(_ context.Context, img *hal.Image) error {
	if c.attachErr != nil {
		return c.attachErr
	}
	c.attached = true
	c.image = img
	return nil
}

func (c *fakeController) Detach() error {
	c.detachCalls++
	if !c.attached {
		return pkg.ErrNotConnected
	}
	c.attached = false
	return nil
}

// trackedHID is a HID instance that records the order instances are freed.
type trackedHID struct {
	*hid.Instance
	id            int
	freed         *[]int
	released      *[]string
	failConfigure bool
}

func (t *trackedHID) SetOptions(opts hid.Options) error {
	if t.failConfigure {
		return fmt.Errorf("%w: injected HID configure failure", pkg.ErrInvalidConfig)
	}
	return t.Instance.SetOptions(opts)
}

func (t *trackedHID) Free() error {
	*t.freed = append(*t.freed, t.id)
	*t.released = append(*t.released, fmt.Sprintf("hid %d", t.id))
	return t.Instance.Free()
}

// trackedStorage is a mass-storage instance that records the order its
// resources are released.
type trackedStorage struct {
	*msc.Instance
	released *[]string
}

func (t *trackedStorage) FreeBuffers() {
	*t.released = append(*t.released, "buffers")
	t.Instance.FreeBuffers()
}

func (t *trackedStorage) RemoveLUNs() error {
	*t.released = append(*t.released, "luns")
	return t.Instance.RemoveLUNs()
}

func (t *trackedStorage) Free() error {
	*t.released = append(*t.released, "storage")
	return t.Instance.Free()
}

// envConfig selects the faults injected into a test environment.
type envConfig struct {
	failHIDAt       int // index of the HID allocation that fails, -1 for none
	failConfigureAt int // index of the HID instance whose configuration fails, -1 for none
	noStorage       bool
	noACM           bool
	otg             bool
	endpoints       int
}

func defaultEnv() envConfig {
	return envConfig{failHIDAt: -1, failConfigureAt: -1, endpoints: device.MaxEndpointNumber}
}

type env struct {
	dev      *device.Device
	ctrl     *fakeController
	registry *Registry

	hidCreated int
	hidFreed   []int
	released   []string // Release order of HID instances and storage resources
}

func newEnv(t *testing.T, cfg envConfig) *env {
	t.Helper()

	e := &env{
		ctrl:     &fakeController{otg: cfg.otg, endpoints: cfg.endpoints},
		registry: NewRegistry(),
	}
	e.dev = device.NewDevice(nil, e.ctrl)

	require.NoError(t, e.dev.RegisterFunction(hid.Kind, func() (device.FunctionInstance, error) {
		if e.hidCreated == cfg.failHIDAt {
			return nil, fmt.Errorf("%w: injected HID failure", pkg.ErrResourceExhausted)
		}
		fi, err := hid.NewInstance()
		if err != nil {
			return nil, err
		}
		inst := &trackedHID{
			Instance:      fi.(*hid.Instance),
			id:            e.hidCreated,
			freed:         &e.hidFreed,
			released:      &e.released,
			failConfigure: e.hidCreated == cfg.failConfigureAt,
		}
		e.hidCreated++
		return inst, nil
	}))
	if !cfg.noStorage {
		require.NoError(t, e.dev.RegisterFunction(msc.Kind, func() (device.FunctionInstance, error) {
			fi, err := msc.NewInstance()
			if err != nil {
				return nil, err
			}
			return &trackedStorage{Instance: fi.(*msc.Instance), released: &e.released}, nil
		}))
	}
	if !cfg.noACM {
		require.NoError(t, cdc.Register(e.dev))
	}
	return e
}

func (e *env) registerKeyboards(t *testing.T, n int) {
	t.Helper()
	kb, ok := Preset(PresetKeyboard)
	require.True(t, ok)
	for i := 0; i < n; i++ {
		_, err := e.registry.Register(kb)
		require.NoError(t, err)
	}
	e.registry.Close()
}

// requireNothingHeld fails the test if any handle, string or
// configuration survived.
func (e *env) requireNothingHeld(t *testing.T) {
	t.Helper()
	require.Zero(t, e.dev.LiveInstances(), "live instances")
	require.Zero(t, e.dev.LiveFunctions(), "live functions")
	require.Zero(t, e.dev.NumStrings(), "string IDs")
	require.Nil(t, e.dev.OTGDescriptor(), "OTG descriptor")
	require.Empty(t, e.dev.Configurations(), "configurations")
	for i, n := range e.registry.Nodes() {
		require.Nil(t, n.Instance(), "node %d instance", i)
		require.Nil(t, n.Function(), "node %d function", i)
	}
}
