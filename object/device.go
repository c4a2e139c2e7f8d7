package object

import "github.com/edgeo-scada/bacnet"

// Device models the mandatory singleton Device object (C13 requires
// exactly one per database, created at construction and never
// removable). Boot-time properties mirror what a real device reports
// under ReadPropertyMultiple against the Device object: protocol
// version/revision, vendor identity, retry/timeout/segmentation
// capability, and object-list are modeled as real properties rather
// than constants baked into the wire codec.
type Device struct {
	Base
	VendorID             uint16
	VendorName           string
	ModelName            string
	FirmwareRevision     string
	ApplicationSoftware  string
	Description          string
	Location             string
	ProtocolVersion      uint8
	ProtocolRevision     uint8
	MaxAPDULengthAccepted uint16
	SegmentationSupported bacnet.Segmentation
	APDUTimeout          uint16
	NumberOfAPDURetries  uint8
	MaxSegmentsAccepted  uint8
	SystemStatus         bacnet.DeviceStatus
	DatabaseRevision     uint32

	objectListFn func() []bacnet.ObjectIdentifier
}

// NewDevice constructs the singleton Device object. objectListFn is
// supplied by the owning database so object-list always reflects the
// current contents without Device holding a direct reference back.
func NewDevice(instance uint32, name string, vendorID uint16, objectListFn func() []bacnet.ObjectIdentifier) *Device {
	return &Device{
		Base:                  NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, instance), name),
		VendorID:              vendorID,
		ProtocolVersion:       1,
		ProtocolRevision:      22,
		MaxAPDULengthAccepted: bacnet.MaxAPDULength,
		SegmentationSupported: bacnet.SegmentationBoth,
		APDUTimeout:           30000,
		NumberOfAPDURetries:   3,
		MaxSegmentsAccepted:   4,
		SystemStatus:          bacnet.DeviceStatusOperational,
		objectListFn:          objectListFn,
	}
}

func (d *Device) PropertyList() []bacnet.PropertyIdentifier {
	return []bacnet.PropertyIdentifier{
		bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectName, bacnet.PropertyObjectType,
		bacnet.PropertySystemStatus, bacnet.PropertyVendorName, bacnet.PropertyVendorIdentifier,
		bacnet.PropertyModelName, bacnet.PropertyFirmwareRevision, bacnet.PropertyApplicationSoftwareVersion,
		bacnet.PropertyProtocolVersion, bacnet.PropertyProtocolRevision, bacnet.PropertyObjectList,
		bacnet.PropertyMaxApduLengthAccepted, bacnet.PropertySegmentationSupported,
		bacnet.PropertyApduTimeout, bacnet.PropertyNumberOfApduRetries, bacnet.PropertyMaxSegmentsAccepted,
		bacnet.PropertyDatabaseRevision, bacnet.PropertyDescription, bacnet.PropertyLocation,
	}
}

func (d *Device) GetProperty(id bacnet.PropertyIdentifier) (interface{}, error) {
	switch id {
	case bacnet.PropertyObjectIdentifier:
		return d.ID, nil
	case bacnet.PropertyObjectName:
		return d.Nm, nil
	case bacnet.PropertyObjectType:
		return d.ID.Type, nil
	case bacnet.PropertySystemStatus:
		return d.SystemStatus, nil
	case bacnet.PropertyVendorName:
		return d.VendorName, nil
	case bacnet.PropertyVendorIdentifier:
		return d.VendorID, nil
	case bacnet.PropertyModelName:
		return d.ModelName, nil
	case bacnet.PropertyFirmwareRevision:
		return d.FirmwareRevision, nil
	case bacnet.PropertyApplicationSoftwareVersion:
		return d.ApplicationSoftware, nil
	case bacnet.PropertyProtocolVersion:
		return d.ProtocolVersion, nil
	case bacnet.PropertyProtocolRevision:
		return d.ProtocolRevision, nil
	case bacnet.PropertyObjectList:
		if d.objectListFn == nil {
			return []bacnet.ObjectIdentifier{d.ID}, nil
		}
		return d.objectListFn(), nil
	case bacnet.PropertyMaxApduLengthAccepted:
		return d.MaxAPDULengthAccepted, nil
	case bacnet.PropertySegmentationSupported:
		return d.SegmentationSupported, nil
	case bacnet.PropertyApduTimeout:
		return d.APDUTimeout, nil
	case bacnet.PropertyNumberOfApduRetries:
		return d.NumberOfAPDURetries, nil
	case bacnet.PropertyMaxSegmentsAccepted:
		return d.MaxSegmentsAccepted, nil
	case bacnet.PropertyDatabaseRevision:
		return d.DatabaseRevision, nil
	case bacnet.PropertyDescription:
		return d.Description, nil
	case bacnet.PropertyLocation:
		return d.Location, nil
	default:
		if v, ok := d.getExtra(id); ok {
			return v, nil
		}
		return nil, unknownPropertyErr(id)
	}
}

func (d *Device) IsPropertyWritable(id bacnet.PropertyIdentifier) bool {
	switch id {
	case bacnet.PropertyObjectName, bacnet.PropertyDescription, bacnet.PropertyLocation:
		return true
	default:
		return false
	}
}

func (d *Device) SetProperty(id bacnet.PropertyIdentifier, value interface{}, priority *uint8) error {
	if priority != nil {
		return bacnet.ErrObjectNotWritable
	}
	switch id {
	case bacnet.PropertyObjectName:
		s, ok := value.(string)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		d.Nm = s
		return nil
	case bacnet.PropertyDescription:
		s, ok := value.(string)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		d.Description = s
		return nil
	case bacnet.PropertyLocation:
		s, ok := value.(string)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		d.Location = s
		return nil
	default:
		return bacnet.ErrObjectNotWritable
	}
}
