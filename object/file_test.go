package object

import (
	"testing"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

func TestFileStreamReadWrite(t *testing.T) {
	f := NewFile(1, "test.dat", "application/octet-stream")
	require.NoError(t, f.WriteStream(0, []byte("Hello, BACnet File!")))
	require.Equal(t, uint32(len("Hello, BACnet File!")), f.Size())

	data, eof := f.ReadStream(0, 5)
	require.False(t, eof)
	require.Equal(t, []byte("Hello"), data)

	data, eof = f.ReadStream(7, 6)
	require.False(t, eof)
	require.Equal(t, []byte("BACnet"), data)

	require.NoError(t, f.WriteStream(7, []byte("Rust  ")))
	data, _ = f.ReadStream(0, int64(f.Size()))
	require.Equal(t, "Hello, Rust   File!", string(data))
}

func TestFileStreamReadPastEOF(t *testing.T) {
	f := NewFile(1, "empty.dat", "text/plain")
	data, eof := f.ReadStream(0, 10)
	require.True(t, eof)
	require.Empty(t, data)
}

func TestFileRecordReadWrite(t *testing.T) {
	f := NewRecordFile(1, "records.txt", "text/plain")
	require.NoError(t, f.WriteStream(0, []byte("Line 1\nLine 2\nLine 3\nLine 4")))

	records, eof, err := f.ReadRecords(1, 2)
	require.NoError(t, err)
	require.False(t, eof)
	require.Equal(t, [][]byte{[]byte("Line 2"), []byte("Line 3")}, records)

	require.NoError(t, f.WriteRecords(1, [][]byte{[]byte("New Line 2"), []byte("New Line 3")}))

	records, eof, err = f.ReadRecords(0, 4)
	require.NoError(t, err)
	require.True(t, eof)
	require.Equal(t, [][]byte{
		[]byte("Line 1"), []byte("New Line 2"), []byte("New Line 3"), []byte("Line 4"),
	}, records)
}

func TestFileRecordAccessRejectedOnStreamFile(t *testing.T) {
	f := NewFile(1, "stream.dat", "text/plain")
	_, _, err := f.ReadRecords(0, 1)
	require.ErrorIs(t, err, bacnet.ErrFileAccessMethodMismatch)
}

func TestFileReadOnlyRejectsWrites(t *testing.T) {
	f := NewFile(1, "readonly.txt", "text/plain")
	f.ReadOnly = true
	require.ErrorIs(t, f.WriteStream(0, []byte("test")), bacnet.ErrFileReadOnly)

	rf := NewRecordFile(2, "readonly-records.txt", "text/plain")
	rf.ReadOnly = true
	require.ErrorIs(t, rf.WriteRecords(0, [][]byte{[]byte("test")}), bacnet.ErrFileReadOnly)
}

func TestFileProperties(t *testing.T) {
	f := NewFile(1, "config.txt", "text/plain")

	name, err := f.GetProperty(bacnet.PropertyObjectName)
	require.NoError(t, err)
	require.Equal(t, "config.txt", name)

	require.NoError(t, f.SetProperty(bacnet.PropertyArchive, true, nil))
	archive, err := f.GetProperty(bacnet.PropertyArchive)
	require.NoError(t, err)
	require.Equal(t, true, archive)

	require.False(t, f.IsPropertyWritable(bacnet.PropertyFileSize))
	require.True(t, f.IsPropertyWritable(bacnet.PropertyArchive))
}

func TestFileRecordCountOnlyForRecordAccess(t *testing.T) {
	f := NewFile(1, "stream.dat", "text/plain")
	_, err := f.GetProperty(bacnet.PropertyRecordCount)
	require.Error(t, err)

	rf := NewRecordFile(2, "records.txt", "text/plain")
	require.NoError(t, rf.WriteStream(0, []byte("a\nb\nc")))
	count, err := rf.GetProperty(bacnet.PropertyRecordCount)
	require.NoError(t, err)
	require.Equal(t, uint32(3), count)
}
