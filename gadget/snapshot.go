package gadget

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ardnew/softgadget/device"
)

// snapshotEncMode encodes snapshots deterministically so identical
// gadgets produce identical bytes.
var snapshotEncMode cbor.EncMode

var snapshotDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	snapshotEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	snapshotDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

// Snapshot is a point-in-time view of a composite gadget.
type Snapshot struct {
	Driver         string           `cbor:"1,keyasint"`
	State          string           `cbor:"2,keyasint"`
	DeviceState    string           `cbor:"3,keyasint"`
	VendorID       uint16           `cbor:"4,keyasint"`
	ProductID      uint16           `cbor:"5,keyasint"`
	Strings        map[uint8]string `cbor:"6,keyasint"`
	Functions      []FunctionState  `cbor:"7,keyasint"`
	Configurations []ConfigState    `cbor:"8,keyasint"`
	OTG            bool             `cbor:"9,keyasint"`
}

// FunctionState describes one function of the gadget.
type FunctionState struct {
	Kind         string `cbor:"1,keyasint"`
	Attached     bool   `cbor:"2,keyasint"`
	ReportLength uint16 `cbor:"3,keyasint,omitempty"`
	LUNs         int    `cbor:"4,keyasint,omitempty"`
}

// ConfigState describes one registered configuration.
type ConfigState struct {
	Value       uint8  `cbor:"1,keyasint"`
	Label       string `cbor:"2,keyasint"`
	Interfaces  int    `cbor:"3,keyasint"`
	Endpoints   int    `cbor:"4,keyasint"`
	SelfPowered bool   `cbor:"5,keyasint"`
	Descriptor  []byte `cbor:"6,keyasint"`
}

// TakeSnapshot captures the state of dev as bound by c.
func TakeSnapshot(dev *device.Device, c *Composite) (*Snapshot, error) {
	a := c.Assembler()
	s := &Snapshot{
		Driver:      c.Name(),
		State:       a.State().String(),
		DeviceState: dev.State().String(),
		VendorID:    dev.Descriptor.VendorID,
		ProductID:   dev.Descriptor.ProductID,
		Strings:     make(map[uint8]string),
		OTG:         dev.OTGDescriptor() != nil,
	}

	for _, id := range a.StringIDs() {
		if str, ok := dev.String(id); ok {
			s.Strings[id] = str
		}
	}

	s.Functions = a.functionStates()

	for _, cfg := range dev.Configurations() {
		data, err := cfg.Bytes()
		if err != nil {
			return nil, err
		}
		s.Configurations = append(s.Configurations, ConfigState{
			Value:       cfg.Value,
			Label:       cfg.Label,
			Interfaces:  cfg.NumInterfaces(),
			Endpoints:   cfg.NumEndpoints(),
			SelfPowered: cfg.IsSelfPowered(),
			Descriptor:  data,
		})
	}

	return s, nil
}

// EncodeSnapshot encodes s as canonical CBOR.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// DecodeSnapshot decodes a snapshot produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := snapshotDecMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// functionStates lists every function that has an instance, in attach
// order.
func (a *Assembler) functionStates() []FunctionState {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var states []FunctionState
	for _, n := range a.registry.Nodes() {
		fi := n.Instance()
		if fi == nil {
			continue
		}
		states = append(states, FunctionState{
			Kind:         fi.Kind(),
			Attached:     n.Function() != nil,
			ReportLength: n.desc.ReportLength,
		})
	}
	if a.acm.instance != nil {
		states = append(states, FunctionState{
			Kind:     a.acm.instance.Kind(),
			Attached: a.acm.function != nil,
		})
	}
	if storage, ok := a.storage.instance.(storageInstance); ok {
		states = append(states, FunctionState{
			Kind:     a.storage.instance.Kind(),
			Attached: a.storage.function != nil,
			LUNs:     storage.Common().NumLUNs(),
		})
	}
	return states
}
