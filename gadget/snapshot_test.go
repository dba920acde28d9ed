package gadget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	e := newEnv(t, defaultEnv())
	e.registerKeyboards(t, 1)

	params := DefaultParams()
	params.EnableACM = true
	params.Serial = "0123456789"
	c := New(e.registry, params)
	require.NoError(t, c.Bind(e.dev))
	t.Cleanup(func() { c.Unbind(e.dev) })

	s, err := TakeSnapshot(e.dev, c)
	require.NoError(t, err)
	assert.Equal(t, DriverName, s.Driver)
	assert.Equal(t, StatePublished.String(), s.State)
	assert.Len(t, s.Strings, 3)
	assert.Contains(t, s.Strings, uint8(3))
	assert.Equal(t, "0123456789", s.Strings[3])

	require.Len(t, s.Functions, 3)
	assert.Equal(t, FunctionState{Kind: "hid", Attached: true, ReportLength: 8}, s.Functions[0])
	assert.Equal(t, FunctionState{Kind: "acm", Attached: true}, s.Functions[1])
	assert.Equal(t, FunctionState{Kind: "mass_storage", Attached: true, LUNs: 1}, s.Functions[2])

	require.Len(t, s.Configurations, 1)
	assert.Equal(t, LabelHIDACMMassStorage, s.Configurations[0].Label)
	assert.Equal(t, 4, s.Configurations[0].Interfaces)

	data, err := EncodeSnapshot(s)
	require.NoError(t, err)
	again, err := EncodeSnapshot(s)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)

	_, err = DecodeSnapshot([]byte{0xFF})
	assert.Error(t, err)
}
