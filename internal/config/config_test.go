package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softgadget/device/class/msc"
	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/gadget"
	"github.com/ardnew/softgadget/pkg"
)

// isolate keeps Load from picking up configuration files outside the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "softgadget.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	p := cfg.Params()
	assert.Equal(t, gadget.DefaultParams(), p)
	assert.Equal(t, []string{gadget.PresetKeyboard}, cfg.HID.Presets)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, pkg.LogFormatText, cfg.LogFormat())
	assert.Empty(t, cfg.ConfigFile)

	speed, err := cfg.Speed()
	require.NoError(t, err)
	assert.Equal(t, hal.SpeedHigh, speed)
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
gadget:
  vendor_id: 0x1d6b
  product_id: 0x0104
  manufacturer: Acme
  product: Widget
  serial: "0001"
  enable_acm: true
storage:
  buffers: 4
  stall: false
  inquiry_vendor: ACME
  luns:
    - file: /tmp/disk.img
      ro: true
    - removable: true
      size: 1048576
hid:
  presets: [keyboard, mouse]
controller:
  speed: full
  otg: true
  endpoints: 6
log:
  level: debug
  format: json
`)

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)

	p := cfg.Params()
	assert.Equal(t, uint16(0x1d6b), p.VendorID)
	assert.Equal(t, uint16(0x0104), p.ProductID)
	assert.Equal(t, "Acme", p.Manufacturer)
	assert.Equal(t, "Widget", p.Product)
	assert.Equal(t, "0001", p.Serial)
	assert.True(t, p.EnableACM)
	assert.Equal(t, 4, p.NumBuffers)
	assert.False(t, p.Stall)
	assert.Equal(t, "ACME", p.InquiryVendor)
	assert.Equal(t, []msc.LUNConfig{
		{Filename: "/tmp/disk.img", ReadOnly: true},
		{Removable: true, Size: 1 << 20},
	}, p.LUNs)

	assert.Equal(t, []string{"keyboard", "mouse"}, cfg.HID.Presets)
	assert.Equal(t, pkg.LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())

	ctrl, err := cfg.NewController()
	require.NoError(t, err)
	assert.True(t, ctrl.IsOTG())
	assert.Equal(t, hal.SpeedFull, ctrl.MaxSpeed())
	assert.Equal(t, 6, ctrl.Endpoints())
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
gadget:
  manufacturer: FromFile
  product: FromFile
storage:
  buffers: 8
`)

	cfg, err := Load([]string{
		"-c", path,
		"--manufacturer", "FromFlag",
		"--vendor", "0x1234",
		"--acm",
		"-l", "file=/tmp/a.img,ro",
		"-l", "size=4M,removable",
	})
	require.NoError(t, err)

	assert.Equal(t, "FromFlag", cfg.Gadget.Manufacturer)
	assert.Equal(t, "FromFile", cfg.Gadget.Product)
	assert.Equal(t, uint16(0x1234), cfg.Gadget.VendorID)
	assert.True(t, cfg.Gadget.EnableACM)
	assert.Equal(t, 8, cfg.Storage.Buffers)
	assert.Equal(t, []msc.LUNConfig{
		{Filename: "/tmp/a.img", ReadOnly: true},
		{Size: 4 << 20, Removable: true},
	}, cfg.Storage.LUNs)
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("SOFTGADGET_GADGET_MANUFACTURER", "FromEnv")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", cfg.Gadget.Manufacturer)

	cfg, err = Load([]string{"--manufacturer", "FromFlag"})
	require.NoError(t, err)
	assert.Equal(t, "FromFlag", cfg.Gadget.Manufacturer)
}

func TestLoadAutoSerial(t *testing.T) {
	isolate(t)

	cfg, err := Load([]string{"--serial", "auto"})
	require.NoError(t, err)

	_, err = uuid.Parse(cfg.Gadget.Serial)
	assert.NoError(t, err)
}

func TestLoadSearchPath(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".softgadget")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "softgadget.yaml"),
		[]byte("gadget:\n  product: Found\n"), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "Found", cfg.Gadget.Product)
	assert.NotEmpty(t, cfg.ConfigFile)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}},
		{"unknown flag", []string{"--frobnicate"}},
		{"bad speed", []string{"--speed", "warp"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"bad log format", []string{"--log-format", "xml"}},
		{"bad lun", []string{"--lun", "file=a.img,shiny"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}

	_, err := Load([]string{"--speed", "warp"})
	assert.ErrorIs(t, err, pkg.ErrInvalidConfig)
}

func TestParseLUN(t *testing.T) {
	tests := []struct {
		arg  string
		want msc.LUNConfig
	}{
		{"file=disk.img", msc.LUNConfig{Filename: "disk.img"}},
		{"file=cd.iso,cdrom", msc.LUNConfig{Filename: "cd.iso", CDROM: true}},
		{"removable", msc.LUNConfig{Removable: true}},
		{"size=512,nofua", msc.LUNConfig{Size: 512, NoFUA: true}},
		{"size=2K", msc.LUNConfig{Size: 2048}},
		{"size=1G, ro", msc.LUNConfig{Size: 1 << 30, ReadOnly: true}},
		{"removable,", msc.LUNConfig{Removable: true}},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseLUN(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, arg := range []string{"size=big", "ro=1", "file", "color=red"} {
		_, err := ParseLUN(arg)
		assert.ErrorIs(t, err, pkg.ErrInvalidConfig, arg)
	}
}

func TestHIDDescriptors(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "hid.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
functions:
  - preset: mouse
`), 0o644))

	cfg := &Config{HID: HIDConfig{
		Presets:  []string{"keyboard"},
		Manifest: manifest,
	}}

	descs, err := cfg.HIDDescriptors()
	require.NoError(t, err)
	require.Len(t, descs, 2)
	kb, _ := gadget.Preset(gadget.PresetKeyboard)
	mouse, _ := gadget.Preset(gadget.PresetMouse)
	assert.Equal(t, kb, descs[0])
	assert.Equal(t, mouse, descs[1])

	cfg.HID.Presets = []string{"joystick"}
	_, err = cfg.HIDDescriptors()
	assert.ErrorIs(t, err, pkg.ErrInvalidConfig)
}
