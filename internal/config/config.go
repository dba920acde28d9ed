package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ardnew/softgadget/device/class/msc"
	"github.com/ardnew/softgadget/device/hal"
	"github.com/ardnew/softgadget/device/hal/spool"
	"github.com/ardnew/softgadget/gadget"
	"github.com/ardnew/softgadget/pkg"
)

// AutoSerial asks for a freshly generated serial number.
const AutoSerial = "auto"

// EnvPrefix prefixes environment variables overriding configuration keys,
// e.g. SOFTGADGET_GADGET_SERIAL.
const EnvPrefix = "SOFTGADGET"

// Config defines the complete gadget configuration.
type Config struct {
	Gadget     GadgetConfig     `mapstructure:"gadget"`
	Storage    StorageConfig    `mapstructure:"storage"`
	HID        HIDConfig        `mapstructure:"hid"`
	Controller ControllerConfig `mapstructure:"controller"`
	Log        LogConfig        `mapstructure:"log"`

	ConfigFile string `mapstructure:"-"` // File the configuration was read from, if any
}

// GadgetConfig defines device identification and composition.
type GadgetConfig struct {
	VendorID     uint16 `mapstructure:"vendor_id"`
	ProductID    uint16 `mapstructure:"product_id"`
	BCDDevice    uint16 `mapstructure:"bcd_device"`
	Manufacturer string `mapstructure:"manufacturer"`
	Product      string `mapstructure:"product"`
	Serial       string `mapstructure:"serial"` // "auto" generates a UUID
	EnableACM    bool   `mapstructure:"enable_acm"`
	RequireHID   bool   `mapstructure:"require_hid"`
	SelfPowered  bool   `mapstructure:"self_powered"`
}

// StorageConfig defines the mass-storage function.
type StorageConfig struct {
	Buffers        int             `mapstructure:"buffers"`
	Stall          bool            `mapstructure:"stall"`
	LUNs           []msc.LUNConfig `mapstructure:"luns"`
	LUNArgs        []string        `mapstructure:"lun"` // "file=disk.img,ro,removable"; overrides LUNs
	InquiryVendor  string          `mapstructure:"inquiry_vendor"`
	InquiryProduct string          `mapstructure:"inquiry_product"`
}

// HIDConfig defines the HID functions, presets first.
type HIDConfig struct {
	Presets  []string `mapstructure:"presets"`  // "keyboard", "mouse"
	Manifest string   `mapstructure:"manifest"` // YAML manifest path
}

// ControllerConfig defines the spool controller.
type ControllerConfig struct {
	Spool     string `mapstructure:"spool"` // Bus directory
	OTG       bool   `mapstructure:"otg"`
	Speed     string `mapstructure:"speed"` // "full" or "high"
	Endpoints int    `mapstructure:"endpoints"`
}

// LogConfig defines logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // Log file path, empty or "-" for stderr
}

func setDefaults(v *viper.Viper) {
	p := gadget.DefaultParams()

	v.SetDefault("gadget.vendor_id", p.VendorID)
	v.SetDefault("gadget.product_id", p.ProductID)
	v.SetDefault("gadget.bcd_device", p.BCDDevice)
	v.SetDefault("gadget.manufacturer", p.Manufacturer)
	v.SetDefault("gadget.product", p.Product)
	v.SetDefault("gadget.serial", "")
	v.SetDefault("gadget.enable_acm", p.EnableACM)
	v.SetDefault("gadget.require_hid", p.RequireHID)
	v.SetDefault("gadget.self_powered", p.SelfPowered)

	v.SetDefault("storage.buffers", p.NumBuffers)
	v.SetDefault("storage.stall", p.Stall)
	v.SetDefault("storage.lun", []string{})
	v.SetDefault("storage.inquiry_vendor", "")
	v.SetDefault("storage.inquiry_product", "")

	v.SetDefault("hid.presets", []string{gadget.PresetKeyboard})
	v.SetDefault("hid.manifest", "")

	v.SetDefault("controller.spool", filepath.Join(os.TempDir(), "softgadget"))
	v.SetDefault("controller.otg", false)
	v.SetDefault("controller.speed", "high")
	v.SetDefault("controller.endpoints", spool.DefaultEndpoints)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"vendor":       "gadget.vendor_id",
	"product-id":   "gadget.product_id",
	"bcd":          "gadget.bcd_device",
	"manufacturer": "gadget.manufacturer",
	"product":      "gadget.product",
	"serial":       "gadget.serial",
	"acm":          "gadget.enable_acm",
	"require-hid":  "gadget.require_hid",
	"buffers":      "storage.buffers",
	"stall":        "storage.stall",
	"lun":          "storage.lun",
	"hid":          "hid.presets",
	"manifest":     "hid.manifest",
	"spool":        "controller.spool",
	"otg":          "controller.otg",
	"speed":        "controller.speed",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
}

// NewFlagSet returns the command-line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.Uint16("vendor", uint16(v.GetUint("gadget.vendor_id")), "USB vendor ID.")
	fs.Uint16("product-id", uint16(v.GetUint("gadget.product_id")), "USB product ID.")
	fs.Uint16("bcd", uint16(v.GetUint("gadget.bcd_device")), "Device release number (BCD).")
	fs.String("manufacturer", v.GetString("gadget.manufacturer"), "Manufacturer string.")
	fs.String("product", v.GetString("gadget.product"), "Product string.")
	fs.String("serial", v.GetString("gadget.serial"), "Serial number string ('auto' to generate one).")
	fs.Bool("acm", v.GetBool("gadget.enable_acm"), "Include the CDC-ACM serial function.")
	fs.Bool("require-hid", v.GetBool("gadget.require_hid"), "Refuse to bind without HID functions.")
	fs.IntP("buffers", "b", v.GetInt("storage.buffers"), "Number of mass-storage pipeline buffers.")
	fs.Bool("stall", v.GetBool("storage.stall"), "Allow the mass-storage function to halt bulk endpoints.")
	fs.StringArrayP("lun", "l", nil, "Logical unit, e.g. 'file=disk.img,ro,removable' (repeatable).")
	fs.StringSlice("hid", v.GetStringSlice("hid.presets"), "HID presets to register (keyboard, mouse).")
	fs.StringP("manifest", "m", v.GetString("hid.manifest"), "HID manifest file.")
	fs.StringP("spool", "s", v.GetString("controller.spool"), "Directory the gadget is published to.")
	fs.Bool("otg", v.GetBool("controller.otg"), "Emulate a dual-role (OTG) controller.")
	fs.String("speed", v.GetString("controller.speed"), "Controller speed (full, high).")
	fs.StringP("log-level", "v", v.GetString("log.level"), "Log verbosity level (debug, info, warn, error).")
	fs.String("log-format", v.GetString("log.format"), "Log format (text, json).")
	fs.StringP("log-file", "L", v.GetString("log.file"), "Log file name ('-' for stderr).")
	return fs
}

// Load parses args and merges them with the configuration file and the
// environment. Flags take precedence over the environment, which takes
// precedence over the file.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("softgadget")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrInvalidConfig, err)
	}
	return LoadFlags(fs)
}

// LoadFlags loads the configuration using an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("softgadget")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/softgadget/")
		v.AddConfigPath("$HOME/.softgadget")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	if err := config.fixup(); err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentConfig, "configuration loaded",
		"file", config.ConfigFile,
		"luns", len(config.Storage.LUNs),
		"presets", config.HID.Presets)

	return &config, nil
}

func (c *Config) fixup() error {
	if strings.EqualFold(c.Gadget.Serial, AutoSerial) {
		c.Gadget.Serial = uuid.NewString()
	}

	if len(c.Storage.LUNArgs) > 0 {
		luns := make([]msc.LUNConfig, 0, len(c.Storage.LUNArgs))
		for _, arg := range c.Storage.LUNArgs {
			lun, err := ParseLUN(arg)
			if err != nil {
				return err
			}
			luns = append(luns, lun)
		}
		c.Storage.LUNs = luns
	}
	if len(c.Storage.LUNs) == 0 {
		c.Storage.LUNs = gadget.DefaultParams().LUNs
	}

	c.Controller.Speed = strings.ToLower(c.Controller.Speed)
	if _, err := c.Speed(); err != nil {
		return err
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// ParseLUN parses a logical unit argument: comma-separated
// "file=PATH", "size=BYTES" (with an optional K, M or G suffix) and the
// flags "ro", "removable", "cdrom" and "nofua".
func ParseLUN(arg string) (msc.LUNConfig, error) {
	var lun msc.LUNConfig
	for _, field := range strings.Split(arg, ",") {
		key, value, hasValue := strings.Cut(strings.TrimSpace(field), "=")
		switch {
		case key == "file" && hasValue:
			lun.Filename = value
		case key == "size" && hasValue:
			size, err := parseSize(value)
			if err != nil {
				return msc.LUNConfig{}, fmt.Errorf("%w: LUN %q: %w", pkg.ErrInvalidConfig, arg, err)
			}
			lun.Size = size
		case key == "ro" && !hasValue:
			lun.ReadOnly = true
		case key == "removable" && !hasValue:
			lun.Removable = true
		case key == "cdrom" && !hasValue:
			lun.CDROM = true
		case key == "nofua" && !hasValue:
			lun.NoFUA = true
		case key == "":
		default:
			return msc.LUNConfig{}, fmt.Errorf("%w: LUN %q: unknown field %q", pkg.ErrInvalidConfig, arg, field)
		}
	}
	return lun, nil
}

func parseSize(s string) (uint64, error) {
	shift := 0
	switch {
	case strings.HasSuffix(s, "K"):
		shift = 10
	case strings.HasSuffix(s, "M"):
		shift = 20
	case strings.HasSuffix(s, "G"):
		shift = 30
	}
	if shift > 0 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return n << shift, nil
}

// Speed returns the configured controller speed.
func (c *Config) Speed() (hal.Speed, error) {
	switch c.Controller.Speed {
	case "full":
		return hal.SpeedFull, nil
	case "", "high":
		return hal.SpeedHigh, nil
	default:
		return hal.SpeedUnknown, fmt.Errorf("%w: controller speed %q", pkg.ErrInvalidConfig, c.Controller.Speed)
	}
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() slog.Level {
	level, _ := pkg.ParseLogLevel(c.Log.Level)
	return level
}

// LogFormat returns the configured log format.
func (c *Config) LogFormat() pkg.LogFormat {
	format, _ := pkg.ParseLogFormat(c.Log.Format)
	return format
}

// Params returns the gadget parameters.
func (c *Config) Params() gadget.Params {
	return gadget.Params{
		VendorID:       c.Gadget.VendorID,
		ProductID:      c.Gadget.ProductID,
		BCDDevice:      c.Gadget.BCDDevice,
		Manufacturer:   c.Gadget.Manufacturer,
		Product:        c.Gadget.Product,
		Serial:         c.Gadget.Serial,
		NumBuffers:     c.Storage.Buffers,
		Stall:          c.Storage.Stall,
		LUNs:           c.Storage.LUNs,
		InquiryVendor:  c.Storage.InquiryVendor,
		InquiryProduct: c.Storage.InquiryProduct,
		EnableACM:      c.Gadget.EnableACM,
		RequireHID:     c.Gadget.RequireHID,
		SelfPowered:    c.Gadget.SelfPowered,
	}
}

// HIDDescriptors returns the configured HID functions: the presets in
// order, then the functions of the manifest.
func (c *Config) HIDDescriptors() ([]gadget.FunctionDescriptor, error) {
	var descs []gadget.FunctionDescriptor
	for _, name := range c.HID.Presets {
		desc, ok := gadget.Preset(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown HID preset %q", pkg.ErrInvalidConfig, name)
		}
		descs = append(descs, desc)
	}
	if c.HID.Manifest != "" {
		more, err := gadget.LoadDescriptors(c.HID.Manifest)
		if err != nil {
			return nil, err
		}
		descs = append(descs, more...)
	}
	return descs, nil
}

// NewController creates the spool controller.
func (c *Config) NewController() (*spool.Controller, error) {
	speed, err := c.Speed()
	if err != nil {
		return nil, err
	}
	return spool.New(c.Controller.Spool,
		spool.WithOTG(c.Controller.OTG),
		spool.WithSpeed(speed),
		spool.WithEndpoints(c.Controller.Endpoints),
	), nil
}
