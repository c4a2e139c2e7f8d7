package object

import (
	"github.com/edgeo-scada/bacnet"
)

// FileAccessMethod selects how a File object's contents are addressed,
// per ASHRAE 135 clause 12.13.13.
type FileAccessMethod uint32

const (
	FileAccessRecord FileAccessMethod = 0
	FileAccessStream FileAccessMethod = 1
)

// File models a BACnet File object (ASHRAE 135 clause 12.13), the
// target of the AtomicReadFile/AtomicWriteFile services. Contents are
// held in memory, matching the reference implementation's in-process
// storage.
type File struct {
	Base
	FileType          string
	ModificationDate  bacnet.Date
	Archive           bool
	ReadOnly          bool
	AccessMethod      FileAccessMethod
	Description       string
	recordSep         byte
	data              []byte
}

// NewFile constructs a stream-access File object with empty contents.
func NewFile(instance uint32, name, fileType string) *File {
	return &File{
		Base:         NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeFile, instance), name),
		FileType:     fileType,
		AccessMethod: FileAccessStream,
		recordSep:    '\n',
	}
}

// NewRecordFile constructs a record-access File object with empty
// contents; records are newline-delimited, matching the reference
// implementation's line-per-record convention.
func NewRecordFile(instance uint32, name, fileType string) *File {
	f := NewFile(instance, name, fileType)
	f.AccessMethod = FileAccessRecord
	return f
}

// Size returns the current file size in octets.
func (f *File) Size() uint32 {
	return uint32(len(f.data))
}

// RecordCount returns the number of newline-delimited records the
// file currently holds. Only meaningful for record-access files.
func (f *File) RecordCount() uint32 {
	if len(f.data) == 0 {
		return 0
	}
	return uint32(len(f.splitRecords()))
}

func (f *File) splitRecords() [][]byte {
	var records [][]byte
	start := 0
	for i, b := range f.data {
		if b == f.recordSep {
			records = append(records, f.data[start:i])
			start = i + 1
		}
	}
	if start < len(f.data) {
		records = append(records, f.data[start:])
	}
	return records
}

// ReadStream returns up to count octets starting at startPosition, or
// an empty slice past end-of-file, per AtomicReadFile stream access
// (ASHRAE 135 clause 15.1).
func (f *File) ReadStream(startPosition, count int64) ([]byte, bool) {
	if startPosition < 0 || int(startPosition) >= len(f.data) {
		return nil, true
	}
	end := int(startPosition) + int(count)
	if end > len(f.data) {
		end = len(f.data)
	}
	eof := end >= len(f.data)
	return f.data[startPosition:end], eof
}

// WriteStream writes data at startPosition, extending the file with
// zero bytes if startPosition falls past the current end, per
// AtomicWriteFile stream access. startPosition of -1 means append.
func (f *File) WriteStream(startPosition int64, data []byte) error {
	if f.ReadOnly {
		return bacnet.ErrFileReadOnly
	}
	pos := startPosition
	if pos < 0 {
		pos = int64(len(f.data))
	}
	required := int(pos) + len(data)
	if required > len(f.data) {
		grown := make([]byte, required)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[pos:], data)
	return nil
}

// ReadRecords returns up to recordCount records starting at
// startRecord, per AtomicReadFile record access (ASHRAE 135 clause
// 15.1). Returns ErrFileAccessMethodMismatch if the file is stream-access.
func (f *File) ReadRecords(startRecord int64, recordCount int64) ([][]byte, bool, error) {
	if f.AccessMethod != FileAccessRecord {
		return nil, false, bacnet.ErrFileAccessMethodMismatch
	}
	records := f.splitRecords()
	if startRecord < 0 || int(startRecord) >= len(records) {
		return nil, true, nil
	}
	end := int(startRecord) + int(recordCount)
	if end > len(records) {
		end = len(records)
	}
	eof := end >= len(records)
	return records[startRecord:end], eof, nil
}

// WriteRecords replaces/appends records starting at startRecord, per
// AtomicWriteFile record access. startRecord of -1 means append.
func (f *File) WriteRecords(startRecord int64, records [][]byte) error {
	if f.ReadOnly {
		return bacnet.ErrFileReadOnly
	}
	if f.AccessMethod != FileAccessRecord {
		return bacnet.ErrFileAccessMethodMismatch
	}
	existing := f.splitRecords()
	start := startRecord
	if start < 0 {
		start = int64(len(existing))
	}
	for int64(len(existing)) < start+int64(len(records)) {
		existing = append(existing, nil)
	}
	for i, r := range records {
		existing[int(start)+i] = r
	}
	var out []byte
	for i, r := range existing {
		if i > 0 {
			out = append(out, f.recordSep)
		}
		out = append(out, r...)
	}
	f.data = out
	return nil
}

func (f *File) PropertyList() []bacnet.PropertyIdentifier {
	list := []bacnet.PropertyIdentifier{
		bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectName, bacnet.PropertyObjectType,
		bacnet.PropertyFileType, bacnet.PropertyFileSize, bacnet.PropertyModificationDate,
		bacnet.PropertyArchive, bacnet.PropertyReadOnly, bacnet.PropertyFileAccessMethod,
		bacnet.PropertyDescription,
	}
	if f.AccessMethod == FileAccessRecord {
		list = append(list, bacnet.PropertyRecordCount)
	}
	return list
}

func (f *File) GetProperty(id bacnet.PropertyIdentifier) (interface{}, error) {
	switch id {
	case bacnet.PropertyObjectIdentifier:
		return f.ID, nil
	case bacnet.PropertyObjectName:
		return f.Nm, nil
	case bacnet.PropertyObjectType:
		return f.ID.Type, nil
	case bacnet.PropertyFileType:
		return f.FileType, nil
	case bacnet.PropertyFileSize:
		return f.Size(), nil
	case bacnet.PropertyModificationDate:
		return f.ModificationDate, nil
	case bacnet.PropertyArchive:
		return f.Archive, nil
	case bacnet.PropertyReadOnly:
		return f.ReadOnly, nil
	case bacnet.PropertyFileAccessMethod:
		return uint32(f.AccessMethod), nil
	case bacnet.PropertyDescription:
		return f.Description, nil
	case bacnet.PropertyRecordCount:
		if f.AccessMethod != FileAccessRecord {
			return nil, unknownPropertyErr(id)
		}
		return f.RecordCount(), nil
	default:
		if v, ok := f.getExtra(id); ok {
			return v, nil
		}
		return nil, unknownPropertyErr(id)
	}
}

func (f *File) IsPropertyWritable(id bacnet.PropertyIdentifier) bool {
	switch id {
	case bacnet.PropertyObjectName, bacnet.PropertyArchive, bacnet.PropertyReadOnly, bacnet.PropertyDescription:
		return true
	default:
		return false
	}
}

func (f *File) SetProperty(id bacnet.PropertyIdentifier, value interface{}, priority *uint8) error {
	switch id {
	case bacnet.PropertyObjectName:
		s, ok := value.(string)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		f.Nm = s
		return nil
	case bacnet.PropertyArchive:
		b, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		f.Archive = b
		return nil
	case bacnet.PropertyReadOnly:
		b, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		f.ReadOnly = b
		return nil
	case bacnet.PropertyDescription:
		s, ok := value.(string)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		f.Description = s
		return nil
	default:
		return bacnet.ErrObjectNotWritable
	}
}
