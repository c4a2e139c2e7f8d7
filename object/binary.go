package object

import "github.com/edgeo-scada/bacnet"

// BinaryPolarity mirrors the BACnet polarity enumeration for binary objects.
type BinaryPolarity uint8

const (
	PolarityNormal  BinaryPolarity = 0
	PolarityReverse BinaryPolarity = 1
)

// Binary models binary-input, binary-output, and binary-value objects.
// Present-value is bool; priority-array slots for commandable variants
// hold bool or nil.
type Binary struct {
	Base
	Commandable  bool
	priorityArr  *PriorityArray
	presentValue bool
	OutOfService bool
	Polarity     BinaryPolarity
}

func NewBinaryInput(instance uint32, name string) *Binary {
	return &Binary{Base: NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryInput, instance), name)}
}

func NewBinaryOutput(instance uint32, name string, relinquishDefault bool) *Binary {
	return &Binary{
		Base:        NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryOutput, instance), name),
		Commandable: true,
		priorityArr: &PriorityArray{RelinquishDefault: relinquishDefault},
	}
}

func NewBinaryValue(instance uint32, name string, relinquishDefault bool) *Binary {
	return &Binary{
		Base:        NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryValue, instance), name),
		Commandable: true,
		priorityArr: &PriorityArray{RelinquishDefault: relinquishDefault},
	}
}

func (b *Binary) presentValueAndPriority() (bool, uint8) {
	if !b.Commandable {
		return b.presentValue, 0
	}
	v, prio := b.priorityArr.PresentValue()
	if v == nil {
		return false, prio
	}
	return v.(bool), prio
}

func (b *Binary) PropertyList() []bacnet.PropertyIdentifier {
	list := []bacnet.PropertyIdentifier{
		bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectName, bacnet.PropertyObjectType,
		bacnet.PropertyPresentValue, bacnet.PropertyStatusFlags, bacnet.PropertyOutOfService,
		bacnet.PropertyPolarity,
	}
	if b.Commandable {
		list = append(list, bacnet.PropertyPriorityArray, bacnet.PropertyRelinquishDefault)
	}
	return list
}

func (b *Binary) GetProperty(id bacnet.PropertyIdentifier) (interface{}, error) {
	switch id {
	case bacnet.PropertyObjectIdentifier:
		return b.ID, nil
	case bacnet.PropertyObjectName:
		return b.Nm, nil
	case bacnet.PropertyObjectType:
		return b.ID.Type, nil
	case bacnet.PropertyPresentValue:
		v, _ := b.presentValueAndPriority()
		return v, nil
	case bacnet.PropertyStatusFlags:
		if b.Commandable {
			return StatusFlagsFor(b.priorityArr, false, false, b.OutOfService), nil
		}
		return bacnet.StatusFlags{OutOfService: b.OutOfService}, nil
	case bacnet.PropertyOutOfService:
		return b.OutOfService, nil
	case bacnet.PropertyPolarity:
		return b.Polarity, nil
	case bacnet.PropertyPriorityArray:
		if !b.Commandable {
			return nil, unknownPropertyErr(id)
		}
		return b.priorityArr.Slots(), nil
	case bacnet.PropertyRelinquishDefault:
		if !b.Commandable {
			return nil, unknownPropertyErr(id)
		}
		return b.priorityArr.RelinquishDefault, nil
	default:
		if v, ok := b.getExtra(id); ok {
			return v, nil
		}
		return nil, unknownPropertyErr(id)
	}
}

func (b *Binary) IsPropertyWritable(id bacnet.PropertyIdentifier) bool {
	switch id {
	case bacnet.PropertyPresentValue, bacnet.PropertyOutOfService:
		return true
	case bacnet.PropertyRelinquishDefault:
		return b.Commandable
	default:
		return false
	}
}

func (b *Binary) SetProperty(id bacnet.PropertyIdentifier, value interface{}, priority *uint8) error {
	switch id {
	case bacnet.PropertyPresentValue:
		if !b.Commandable {
			if priority != nil {
				return bacnet.ErrObjectNotWritable
			}
			v, ok := value.(bool)
			if !ok {
				return bacnet.ErrInvalidResponse
			}
			b.presentValue = v
			return nil
		}
		p := uint8(DefaultWritePriority)
		if priority != nil {
			p = *priority
		}
		if value == nil {
			return b.priorityArr.Write(p, nil)
		}
		v, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		return b.priorityArr.Write(p, v)
	case bacnet.PropertyOutOfService:
		v, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		b.OutOfService = v
		return nil
	case bacnet.PropertyRelinquishDefault:
		if !b.Commandable {
			return bacnet.ErrObjectNotWritable
		}
		v, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		b.priorityArr.RelinquishDefault = v
		return nil
	default:
		return bacnet.ErrObjectNotWritable
	}
}
