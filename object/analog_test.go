package object

import (
	"testing"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

// TestAnalogOutputPriorityArray exercises spec.md's S3 scenario: write
// priority override and release on an AnalogOutput.
func TestAnalogOutputPriorityArray(t *testing.T) {
	ao := NewAnalogOutput(1, "ao-1", bacnet.UnitsSquareMeters, 0.0)

	prio8 := uint8(8)
	require.NoError(t, ao.SetProperty(bacnet.PropertyPresentValue, float32(75.0), &prio8))
	v, err := ao.GetProperty(bacnet.PropertyPresentValue)
	require.NoError(t, err)
	require.Equal(t, float32(75.0), v)
	p, err := ao.GetProperty(bacnet.PropertyPriority)
	require.NoError(t, err)
	require.Equal(t, uint8(8), p)

	prio3 := uint8(3)
	require.NoError(t, ao.SetProperty(bacnet.PropertyPresentValue, float32(100.0), &prio3))
	v, err = ao.GetProperty(bacnet.PropertyPresentValue)
	require.NoError(t, err)
	require.Equal(t, float32(100.0), v)
	p, err = ao.GetProperty(bacnet.PropertyPriority)
	require.NoError(t, err)
	require.Equal(t, uint8(3), p)

	require.NoError(t, ao.SetProperty(bacnet.PropertyPresentValue, nil, &prio3))
	v, err = ao.GetProperty(bacnet.PropertyPresentValue)
	require.NoError(t, err)
	require.Equal(t, float32(75.0), v)
	p, err = ao.GetProperty(bacnet.PropertyPriority)
	require.NoError(t, err)
	require.Equal(t, uint8(8), p)
}

func TestPriorityArrayRejectsOutOfRangePriority(t *testing.T) {
	pa := &PriorityArray{}
	require.ErrorIs(t, pa.Write(0, float32(1.0)), bacnet.ErrInvalidPriority)
	require.ErrorIs(t, pa.Write(17, float32(1.0)), bacnet.ErrInvalidPriority)
}

func TestAnalogInputNotCommandable(t *testing.T) {
	ai := NewAnalogInput(1, "ai-1", bacnet.UnitsSquareMeters)
	require.False(t, ai.IsPropertyWritable(bacnet.PropertyRelinquishDefault))
	_, err := ai.GetProperty(bacnet.PropertyPriorityArray)
	require.Error(t, err)
}

func TestOverriddenStatusFlag(t *testing.T) {
	ao := NewAnalogOutput(2, "ao-2", bacnet.UnitsSquareMeters, 0.0)
	prio3 := uint8(3)
	require.NoError(t, ao.SetProperty(bacnet.PropertyPresentValue, float32(10.0), &prio3))

	sf, err := ao.GetProperty(bacnet.PropertyStatusFlags)
	require.NoError(t, err)
	flags := sf.(bacnet.StatusFlags)
	require.True(t, flags.Overridden, "priority 3 is below DefaultWritePriority, so the output should read as overridden")
}
