package gadget

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softgadget/device/class/hid"
	"github.com/ardnew/softgadget/pkg"
)

// Built-in HID presets.
const (
	PresetKeyboard = "keyboard"
	PresetMouse    = "mouse"
)

// Preset returns the descriptor of a built-in HID function.
func Preset(name string) (FunctionDescriptor, bool) {
	switch strings.ToLower(name) {
	case PresetKeyboard:
		return FunctionDescriptor{
			SubClass:     hid.SubclassNone,
			Protocol:     hid.ProtocolKeyboard,
			ReportLength: hid.BootKeyboardReportLength,
			ReportDesc:   hid.BootKeyboardReportDescriptor,
		}.clone(), true
	case PresetMouse:
		return FunctionDescriptor{
			SubClass:     hid.SubclassBoot,
			Protocol:     hid.ProtocolMouse,
			ReportLength: hid.MouseReportLength,
			ReportDesc:   hid.MouseReportDescriptor,
		}.clone(), true
	}
	return FunctionDescriptor{}, false
}

// manifestFunction is one entry of a HID manifest. Either Preset names a
// built-in function, or the remaining fields describe one. The report
// descriptor is written in hex; whitespace is ignored.
type manifestFunction struct {
	Preset           string `yaml:"preset"`
	SubClass         uint8  `yaml:"subclass"`
	Protocol         uint8  `yaml:"protocol"`
	ReportLength     uint16 `yaml:"report_length"`
	ReportDescriptor string `yaml:"report_descriptor"`
}

type manifest struct {
	Functions []manifestFunction `yaml:"functions"`
}

// ParseDescriptors decodes a YAML HID manifest:
//
//	functions:
//	  - preset: keyboard
//	  - subclass: 0
//	    protocol: 0
//	    report_length: 2
//	    report_descriptor: "06 00 ff 09 01 a1 01 ... c0"
func ParseDescriptors(data []byte) ([]FunctionDescriptor, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: HID manifest: %w", pkg.ErrInvalidConfig, err)
	}

	descs := make([]FunctionDescriptor, 0, len(m.Functions))
	for i, mf := range m.Functions {
		desc, err := mf.descriptor()
		if err != nil {
			return nil, fmt.Errorf("HID manifest function %d: %w", i, err)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func (mf *manifestFunction) descriptor() (FunctionDescriptor, error) {
	if mf.Preset != "" {
		desc, ok := Preset(mf.Preset)
		if !ok {
			return FunctionDescriptor{}, fmt.Errorf("%w: unknown preset %q", pkg.ErrInvalidConfig, mf.Preset)
		}
		return desc, nil
	}

	raw, err := hex.DecodeString(strings.Join(strings.Fields(mf.ReportDescriptor), ""))
	if err != nil {
		return FunctionDescriptor{}, fmt.Errorf("%w: report descriptor: %w", pkg.ErrInvalidConfig, err)
	}
	desc := FunctionDescriptor{
		SubClass:     mf.SubClass,
		Protocol:     mf.Protocol,
		ReportLength: mf.ReportLength,
		ReportDesc:   raw,
	}
	if err := desc.Validate(); err != nil {
		return FunctionDescriptor{}, err
	}
	return desc, nil
}

// LoadDescriptors reads a HID manifest from path.
func LoadDescriptors(path string) ([]FunctionDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDescriptors(data)
}

// RegisterAll registers descs in order and closes the registry.
func RegisterAll(r *Registry, descs []FunctionDescriptor) error {
	for i, desc := range descs {
		if _, err := r.Register(desc); err != nil {
			return fmt.Errorf("register HID function %d: %w", i, err)
		}
	}
	r.Close()
	return nil
}
