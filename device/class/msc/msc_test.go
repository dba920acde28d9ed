package msc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/device/hal/spool"
	"github.com/ardnew/softgadget/pkg"
)

func TestCommon_SetNumBuffers(t *testing.T) {
	tests := []struct {
		n  int
		ok bool
	}{
		{MinBuffers - 1, false},
		{MinBuffers, true},
		{MaxBuffers, true},
		{MaxBuffers + 1, false},
	}

	for _, tt := range tests {
		c := NewCommon()
		err := c.SetNumBuffers(tt.n)
		if tt.ok {
			require.NoError(t, err, "n=%d", tt.n)
			assert.Equal(t, tt.n, c.NumBuffers())
		} else {
			assert.ErrorIs(t, err, pkg.ErrInvalidConfig, "n=%d", tt.n)
			assert.Zero(t, c.NumBuffers())
		}
	}
}

func TestCommon_CreateLUNs(t *testing.T) {
	path := writeImage(t, 4*DefaultBlockSize)

	c := NewCommon()
	require.NoError(t, c.CreateLUNs([]LUNConfig{
		{Filename: path, Removable: true},
		{Size: 16 * DefaultBlockSize, ReadOnly: true},
		{Removable: true},
		{Size: 4 * CDROMBlockSize, CDROM: true},
	}))

	luns := c.LUNs()
	require.Len(t, luns, 4)

	assert.Equal(t, path, luns[0].Filename())
	assert.True(t, luns[0].Storage.IsPresent())

	assert.Empty(t, luns[1].Filename())
	assert.True(t, luns[1].Storage.IsReadOnly())

	assert.False(t, luns[2].Storage.IsPresent())

	assert.True(t, luns[3].ReadOnly)
	assert.Equal(t, uint32(CDROMBlockSize), luns[3].Storage.BlockSize())

	inq := luns[0].Inquiry()
	assert.Equal(t, DefaultVendor, inq.Vendor)
	assert.Equal(t, DefaultProduct, inq.Product)
	assert.True(t, inq.Removable)
	cd := luns[3].Inquiry()
	assert.Equal(t, uint8(DeviceTypeCDROM), cd.DeviceType)
	assert.Equal(t, DefaultCDROMProduct, cd.Product)

	assert.ErrorIs(t, c.CreateLUNs([]LUNConfig{{Removable: true}}), pkg.ErrInvalidState)

	require.NoError(t, c.RemoveLUNs())
	assert.Zero(t, c.NumLUNs())
}

func TestCommon_CreateLUNsAllOrNothing(t *testing.T) {
	c := NewCommon()

	err := c.CreateLUNs([]LUNConfig{{Removable: true}, {}})
	assert.ErrorIs(t, err, pkg.ErrInvalidConfig)
	assert.Zero(t, c.NumLUNs())

	assert.ErrorIs(t, c.CreateLUNs(nil), pkg.ErrInvalidConfig)
	assert.ErrorIs(t, c.CreateLUNs(make([]LUNConfig, MaxLUNs+1)), pkg.ErrInvalidConfig)
}

func TestCommon_SetInquiryString(t *testing.T) {
	c := NewCommon()
	require.NoError(t, c.CreateLUNs([]LUNConfig{{Removable: true}}))

	c.SetInquiryString("Acme", "Thumb Drive With A Long Name")
	inq := c.LUNs()[0].Inquiry()
	assert.Equal(t, "Acme", inq.Vendor)
	assert.Equal(t, "Thumb Drive With", inq.Product)

	buf := inq.Bytes()
	require.Len(t, buf, InquiryStandardSize)
	assert.Equal(t, byte(InquiryRMB), buf[1])
	assert.Equal(t, byte(InquiryStandardSize-5), buf[4])
	assert.Equal(t, "Acme    ", string(buf[8:16]))
	assert.Equal(t, DefaultRevision, string(buf[32:36]))

	c.SetInquiryString("", "")
	assert.Equal(t, DefaultVendor, c.LUNs()[0].Inquiry().Vendor)
}

func TestInstance_NewFunctionRequiresSetup(t *testing.T) {
	fi, err := NewInstance()
	require.NoError(t, err)
	inst := fi.(*Instance)

	_, err = inst.NewFunction()
	assert.ErrorIs(t, err, pkg.ErrInvalidConfig)

	require.NoError(t, inst.Common().SetNumBuffers(2))
	_, err = inst.NewFunction()
	assert.ErrorIs(t, err, pkg.ErrInvalidConfig)

	require.NoError(t, inst.Common().CreateLUNs([]LUNConfig{{Removable: true}}))
	f, err := inst.NewFunction()
	require.NoError(t, err)
	assert.Equal(t, Kind, f.Name())

	assert.ErrorIs(t, inst.Free(), pkg.ErrInstanceBusy)
	f.Free()
	require.NoError(t, inst.Free())
	assert.Zero(t, inst.Common().NumLUNs())
	assert.Zero(t, inst.Common().NumBuffers())
}

func bindMassStorage(t *testing.T, ctrl hal.Controller) (*device.Device, *Function) {
	t.Helper()

	dev := device.NewDevice(nil, ctrl)
	require.NoError(t, Register(dev))

	fi, err := dev.GetFunctionInstance(Kind)
	require.NoError(t, err)
	common := fi.(*Instance).Common()
	require.NoError(t, common.SetNumBuffers(2))
	require.NoError(t, common.CreateLUNs([]LUNConfig{{Removable: true}, {Removable: true}}))

	f, err := dev.GetFunction(fi)
	require.NoError(t, err)

	c := device.NewConfiguration("test", 1)
	require.NoError(t, dev.AddConfig(c, func(c *device.Configuration) error {
		return c.AddFunction(f)
	}, nil))

	return dev, f.(*Function)
}

func TestFunction_BindFullSpeed(t *testing.T) {
	_, f := bindMassStorage(t, nil)

	iface := f.Interface()
	require.NotNil(t, iface)
	assert.Equal(t, uint8(device.ClassMassStorage), iface.Class)
	assert.Equal(t, uint8(SubclassSCSI), iface.SubClass)
	assert.Equal(t, uint8(ProtocolBulkOnly), iface.Protocol)
	assert.Equal(t, uint8(0x81), f.InEndpoint().Address)
	assert.Equal(t, uint8(0x01), f.OutEndpoint().Address)
	assert.Equal(t, uint16(FullSpeedPacketSize), f.InEndpoint().MaxPacketSize)
	assert.Equal(t, uint8(1), f.MaxLUN())
}

func TestFunction_BindHighSpeed(t *testing.T) {
	ctrl := spool.New(t.TempDir(), spool.WithSpeed(hal.SpeedHigh))
	dev, f := bindMassStorage(t, ctrl)

	assert.Equal(t, uint16(HighSpeedPacketSize), f.InEndpoint().MaxPacketSize)
	assert.Equal(t, uint16(HighSpeedPacketSize), f.OutEndpoint().MaxPacketSize)

	c := dev.GetConfiguration(1)
	require.NoError(t, dev.RemoveConfig(c))
	assert.Nil(t, f.Interface())
	assert.Zero(t, c.NumEndpoints())
}
