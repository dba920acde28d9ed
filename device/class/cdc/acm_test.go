package cdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/pkg"
)

func TestLineCoding_RoundTrip(t *testing.T) {
	lc := LineCoding{DTERate: 115200, CharFormat: StopBits2, ParityType: ParityEven, DataBits: 7}

	var buf [LineCodingSize]byte
	require.Equal(t, LineCodingSize, lc.MarshalTo(buf[:]))
	assert.Equal(t, []byte{0x00, 0xC2, 0x01, 0x00, 2, 2, 7}, buf[:])

	var out LineCoding
	require.True(t, ParseLineCoding(buf[:], &out))
	assert.Equal(t, lc, out)
	assert.False(t, ParseLineCoding(buf[:6], &out))
}

func TestLineCoding_Valid(t *testing.T) {
	tests := []struct {
		name string
		lc   LineCoding
		want bool
	}{
		{"default", DefaultLineCoding, true},
		{"zero rate", LineCoding{DataBits: 8}, false},
		{"bad stop bits", LineCoding{DTERate: 9600, CharFormat: 3, DataBits: 8}, false},
		{"bad parity", LineCoding{DTERate: 9600, ParityType: 5, DataBits: 8}, false},
		{"bad data bits", LineCoding{DTERate: 9600, DataBits: 9}, false},
		{"16 data bits", LineCoding{DTERate: 9600, DataBits: 16}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lc.Valid())
		})
	}
}

func TestFunctionalDescriptors_MarshalTo(t *testing.T) {
	fd := FunctionalDescriptors{ACMCapabilities: ACMCapLineCoding, ControlInterface: 2, DataInterface: 3}

	buf := make([]byte, FunctionalDescriptorsSize)
	require.Equal(t, FunctionalDescriptorsSize, fd.MarshalTo(buf))
	assert.Equal(t, []byte{
		5, 0x24, SubtypeHeader, 0x10, 0x01,
		5, 0x24, SubtypeCallManagement, 0, 3,
		4, 0x24, SubtypeACM, ACMCapLineCoding,
		5, 0x24, SubtypeUnion, 2, 3,
	}, buf)
	assert.Zero(t, fd.MarshalTo(buf[:FunctionalDescriptorsSize-1]))
}

func TestInstance_SetLineCoding(t *testing.T) {
	fi, err := NewInstance()
	require.NoError(t, err)
	inst := fi.(*Instance)
	assert.Equal(t, DefaultLineCoding, inst.LineCoding())

	assert.ErrorIs(t, inst.SetLineCoding(LineCoding{}), pkg.ErrInvalidConfig)

	lc := LineCoding{DTERate: 115200, DataBits: 8}
	require.NoError(t, inst.SetLineCoding(lc))

	f, err := inst.NewFunction()
	require.NoError(t, err)
	assert.Equal(t, lc, f.(*Function).LineCoding())

	assert.ErrorIs(t, inst.SetLineCoding(DefaultLineCoding), pkg.ErrInstanceBusy)
	assert.ErrorIs(t, inst.Free(), pkg.ErrInstanceBusy)
	f.Free()
	f.Free()
	assert.NoError(t, inst.Free())
}

func TestFunction_Bind(t *testing.T) {
	dev := device.NewDevice(nil, nil)
	require.NoError(t, Register(dev))

	fi, err := dev.GetFunctionInstance(Kind)
	require.NoError(t, err)
	f, err := dev.GetFunction(fi)
	require.NoError(t, err)

	c := device.NewConfiguration("test", 1)
	require.NoError(t, dev.AddConfig(c, func(c *device.Configuration) error {
		return c.AddFunction(f)
	}, nil))

	af := f.(*Function)
	control, data := af.ControlInterface(), af.DataInterface()
	require.NotNil(t, control)
	require.NotNil(t, data)
	assert.Equal(t, uint8(0), control.Number)
	assert.Equal(t, uint8(1), data.Number)
	assert.Equal(t, uint8(device.ClassCDC), control.Class)
	assert.Equal(t, uint8(device.ClassCDCData), data.Class)

	require.NotNil(t, control.Association)
	assert.Equal(t, uint8(2), control.Association.InterfaceCount)
	assert.Equal(t, byte(1), control.ClassDescriptors[18])

	assert.Equal(t, uint8(0x81), af.NotifyEndpoint().Address)
	in, out := af.DataEndpoints()
	assert.Equal(t, uint8(0x82), in.Address)
	assert.Equal(t, uint8(0x01), out.Address)
	assert.Equal(t, uint16(FullSpeedPacketSize), in.MaxPacketSize)
	assert.Equal(t, 3, c.NumEndpoints())

	require.NoError(t, c.RemoveFunction(f))
	assert.Nil(t, af.ControlInterface())
	assert.Zero(t, c.NumEndpoints())
	require.NoError(t, dev.PutFunction(f))
	require.NoError(t, dev.PutFunctionInstance(fi))
}
