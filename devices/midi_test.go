package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/testdrv"
)

func TestGetMIDIFromRegisteredDriver(t *testing.T) {
	assert.Equal(t, "testdrv", MIDIDriverName())

	ports, err := GetMIDI()
	require.NoError(t, err)
	require.Len(t, ports.Inputs(), 1)
	require.Len(t, ports.Outputs(), 1)
	assert.Equal(t, "testdrv-in", ports.Inputs()[0].Name)
	assert.Equal(t, "midi:in:0", ports.Inputs()[0].UID)
	assert.True(t, ports.Inputs()[0].IsOnline)
	assert.Equal(t, "midi:out:0", ports.Outputs()[0].UID)

	ins, outs := MIDIPortNames()
	assert.Equal(t, []string{"testdrv-in"}, ins)
	assert.Equal(t, []string{"testdrv-out"}, outs)
}

func TestDummyDeviceInfoListsMIDIPorts(t *testing.T) {
	c := NewCatalog(nil, DummyFamily{})
	info := c.DeviceInfo(0, DummyDevice)
	assert.Equal(t, []string{"testdrv-in"}, info.MIDIInputs)
	assert.Equal(t, []string{"testdrv-out"}, info.MIDIOutputs)
}

func TestGetMIDIWithoutDriver(t *testing.T) {
	registry := drivers.REGISTRY
	drivers.REGISTRY = map[string]drivers.Driver{}
	defer func() { drivers.REGISTRY = registry }()

	_, err := GetMIDI()
	assert.ErrorIs(t, err, ErrNoMIDIDriver)
	assert.Empty(t, MIDIDriverName())
	ins, outs := MIDIPortNames()
	assert.Empty(t, ins)
	assert.Empty(t, outs)
}
