package objectdb

import (
	"testing"

	"github.com/edgeo-scada/bacnet"
	"github.com/edgeo-scada/bacnet/object"
	"github.com/stretchr/testify/require"
)

func TestNewDatabaseHasDevice(t *testing.T) {
	db := New(1, "test-device", 999)
	require.Equal(t, 1, db.Count())

	dev, ok := db.Get(db.DeviceID())
	require.True(t, ok)
	name, err := dev.GetProperty(bacnet.PropertyObjectName)
	require.NoError(t, err)
	require.Equal(t, "test-device", name)
}

func TestCreateAndDeleteObject(t *testing.T) {
	db := New(1, "test-device", 999)

	ai := object.NewAnalogInput(1, "ai-1", bacnet.UnitsSquareMeters)
	require.NoError(t, db.CreateObject(ai))
	require.Equal(t, 2, db.Count())

	require.ErrorIs(t, db.CreateObject(ai), bacnet.ErrObjectExists)

	got, ok := db.GetByName("ai-1")
	require.True(t, ok)
	require.Equal(t, ai.Identifier(), got.Identifier())

	require.NoError(t, db.DeleteObject(ai.Identifier()))
	require.Equal(t, 1, db.Count())
	_, ok = db.Get(ai.Identifier())
	require.False(t, ok)
}

func TestDeviceObjectCannotBeDeleted(t *testing.T) {
	db := New(1, "test-device", 999)
	err := db.DeleteObject(db.DeviceID())
	require.ErrorIs(t, err, bacnet.ErrObjectNotWritable)
	require.Equal(t, 1, db.Count())
}

func TestNextInstance(t *testing.T) {
	db := New(1, "test-device", 999)
	require.Equal(t, uint32(0), db.NextInstance(bacnet.ObjectTypeAnalogInput))

	require.NoError(t, db.CreateObject(object.NewAnalogInput(5, "ai-5", bacnet.UnitsSquareMeters)))
	require.NoError(t, db.CreateObject(object.NewAnalogInput(2, "ai-2", bacnet.UnitsSquareMeters)))
	require.Equal(t, uint32(6), db.NextInstance(bacnet.ObjectTypeAnalogInput))
}

func TestRevisionBumpsOnWrite(t *testing.T) {
	db := New(1, "test-device", 999)
	ao := object.NewAnalogOutput(1, "ao-1", bacnet.UnitsSquareMeters, 0.0)
	require.NoError(t, db.CreateObject(ao))

	rev := db.Revision()
	require.NoError(t, db.WriteProperty(ao.Identifier(), bacnet.PropertyPresentValue, float32(42.0), nil))
	require.Greater(t, db.Revision(), rev)
}

func TestObjectListReflectsDatabase(t *testing.T) {
	db := New(1, "test-device", 999)
	require.NoError(t, db.CreateObject(object.NewAnalogInput(1, "ai-1", bacnet.UnitsSquareMeters)))

	dev, _ := db.Get(db.DeviceID())
	list, err := dev.GetProperty(bacnet.PropertyObjectList)
	require.NoError(t, err)
	ids := list.([]bacnet.ObjectIdentifier)
	require.Len(t, ids, 2)
}
