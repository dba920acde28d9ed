package device

import (
	"context"

	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/pkg"
)

// fakeController records what the engine publishes.
type fakeController struct {
	otg         bool
	endpoints   int
	attachErr   error
	attached    bool
	image       *hal.Image
	detachCalls int
}

func newFakeController() *fakeController {
	return &fakeController{endpoints: MaxEndpointNumber}
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

// fakeInstance produces fakeFunctions.
type fakeInstance struct {
	kind    string
	in, out int
	newErr  error
	freed   int
}

func (fi *fakeInstance) Kind() string { return fi.kind }

func (fi *fakeInstance) NewFunction() (Function, error) {
	if fi.newErr != nil {
		return nil, fi.newErr
	}
	return &fakeFunction{name: fi.kind, in: fi.in, out: fi.out}, nil
}

func (fi *fakeInstance) Free() error {
	fi.freed++
	return nil
}

// fakeFunction claims one interface with in IN and out OUT endpoints.
type fakeFunction struct {
	name    string
	in, out int
	bindErr error

	iface   *Interface
	binds   int
	unbinds int
	freed   int
}

func (f *fakeFunction) Name() string { return f.name }

func (f *fakeFunction) Bind(c *Configuration) error {
	f.binds++
	iface, err := c.AllocInterface(f, 0xFF, 0, 0)
	if err != nil {
		return err
	}
	f.iface = iface
	for i := 0; i < f.in; i++ {
		if _, err := c.AllocEndpoint(iface, EndpointDirectionIn, EndpointTypeInterrupt, 8, 10); err != nil {
			return err
		}
	}
	for i := 0; i < f.out; i++ {
		if _, err := c.AllocEndpoint(iface, EndpointDirectionOut, EndpointTypeBulk, 64, 0); err != nil {
			return err
		}
	}
	return f.bindErr
}

func (f *fakeFunction) Unbind(*Configuration) { f.unbinds++ }
func (f *fakeFunction) Free()                 { f.freed++ }

// fakeDriver delegates to optional callbacks.
type fakeDriver struct {
	bind    func(d *Device) error
	unbind  func(d *Device) error
	binds   int
	unbinds int
}

func (drv *fakeDriver) Name() string { return "fake" }

func (drv *fakeDriver) Bind(d *Device) error {
	drv.binds++
	if drv.bind != nil {
		return drv.bind(d)
	}
	return nil
}

func (drv *fakeDriver) Unbind(d *Device) error {
	drv.unbinds++
	if drv.unbind != nil {
		return drv.unbind(d)
	}
	return nil
}

// registerFake registers kind with an allocator returning fresh instances
// shaped by tmpl and records them in *out.
func registerFake(d *Device, kind string, tmpl fakeInstance, out *[]*fakeInstance) {
	d.RegisterFunction(kind, func() (FunctionInstance, error) {
		fi := tmpl
		fi.kind = kind
		if out != nil {
			*out = append(*out, &fi)
		}
		return &fi, nil
	})
}
