package object

import (
	"github.com/edgeo-scada/bacnet"
)

// Analog models analog-input, analog-output, and analog-value objects.
// Inputs are never commandable; outputs and values are, per ASHRAE 135
// clauses 12.2/12.3/12.4.
type Analog struct {
	Base
	Commandable  bool
	priorityArr  *PriorityArray
	presentValue float32 // used directly when not commandable
	Units        bacnet.EngineeringUnits
	OutOfService bool
	Description  string
}

// NewAnalogInput constructs a non-commandable analog-input object.
func NewAnalogInput(instance uint32, name string, units bacnet.EngineeringUnits) *Analog {
	return &Analog{
		Base:  NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, instance), name),
		Units: units,
	}
}

// NewAnalogOutput constructs a commandable analog-output object with
// the given relinquish default.
func NewAnalogOutput(instance uint32, name string, units bacnet.EngineeringUnits, relinquishDefault float32) *Analog {
	return &Analog{
		Base:        NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, instance), name),
		Commandable: true,
		priorityArr: &PriorityArray{RelinquishDefault: relinquishDefault},
		Units:       units,
	}
}

// NewAnalogValue constructs a commandable analog-value object.
func NewAnalogValue(instance uint32, name string, units bacnet.EngineeringUnits, relinquishDefault float32) *Analog {
	return &Analog{
		Base:        NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, instance), name),
		Commandable: true,
		priorityArr: &PriorityArray{RelinquishDefault: relinquishDefault},
		Units:       units,
	}
}

func (a *Analog) presentValueAndPriority() (float32, uint8) {
	if !a.Commandable {
		return a.presentValue, 0
	}
	v, prio := a.priorityArr.PresentValue()
	if v == nil {
		return 0, prio
	}
	return v.(float32), prio
}

func (a *Analog) PropertyList() []bacnet.PropertyIdentifier {
	list := []bacnet.PropertyIdentifier{
		bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectName, bacnet.PropertyObjectType,
		bacnet.PropertyPresentValue, bacnet.PropertyStatusFlags, bacnet.PropertyUnits,
		bacnet.PropertyOutOfService, bacnet.PropertyDescription,
	}
	if a.Commandable {
		list = append(list, bacnet.PropertyPriorityArray, bacnet.PropertyRelinquishDefault)
	}
	return list
}

func (a *Analog) GetProperty(id bacnet.PropertyIdentifier) (interface{}, error) {
	switch id {
	case bacnet.PropertyObjectIdentifier:
		return a.ID, nil
	case bacnet.PropertyObjectName:
		return a.Nm, nil
	case bacnet.PropertyObjectType:
		return a.ID.Type, nil
	case bacnet.PropertyPresentValue:
		v, _ := a.presentValueAndPriority()
		return v, nil
	case bacnet.PropertyStatusFlags:
		if a.Commandable {
			return StatusFlagsFor(a.priorityArr, false, false, a.OutOfService), nil
		}
		return bacnet.StatusFlags{OutOfService: a.OutOfService}, nil
	case bacnet.PropertyUnits:
		return a.Units, nil
	case bacnet.PropertyOutOfService:
		return a.OutOfService, nil
	case bacnet.PropertyDescription:
		return a.Description, nil
	case bacnet.PropertyPriority:
		if !a.Commandable {
			return nil, unknownPropertyErr(id)
		}
		_, prio := a.presentValueAndPriority()
		if prio == 0 {
			return nil, nil
		}
		return prio, nil
	case bacnet.PropertyPriorityArray:
		if !a.Commandable {
			return nil, unknownPropertyErr(id)
		}
		return a.priorityArr.Slots(), nil
	case bacnet.PropertyRelinquishDefault:
		if !a.Commandable {
			return nil, unknownPropertyErr(id)
		}
		return a.priorityArr.RelinquishDefault, nil
	default:
		if v, ok := a.getExtra(id); ok {
			return v, nil
		}
		return nil, unknownPropertyErr(id)
	}
}

func (a *Analog) IsPropertyWritable(id bacnet.PropertyIdentifier) bool {
	switch id {
	case bacnet.PropertyPresentValue:
		return true
	case bacnet.PropertyOutOfService, bacnet.PropertyDescription:
		return true
	case bacnet.PropertyRelinquishDefault:
		return a.Commandable
	default:
		return false
	}
}

func (a *Analog) SetProperty(id bacnet.PropertyIdentifier, value interface{}, priority *uint8) error {
	switch id {
	case bacnet.PropertyPresentValue:
		f, ok := toFloat32(value)
		if !ok && value != nil {
			return bacnet.ErrInvalidResponse
		}
		if !a.Commandable {
			if priority != nil {
				return bacnet.ErrObjectNotWritable
			}
			a.presentValue = f
			return nil
		}
		p := uint8(DefaultWritePriority)
		if priority != nil {
			p = *priority
		}
		if value == nil {
			return a.priorityArr.Write(p, nil)
		}
		return a.priorityArr.Write(p, f)
	case bacnet.PropertyOutOfService:
		b, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		a.OutOfService = b
		return nil
	case bacnet.PropertyDescription:
		s, ok := value.(string)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		a.Description = s
		return nil
	case bacnet.PropertyRelinquishDefault:
		if !a.Commandable {
			return bacnet.ErrObjectNotWritable
		}
		f, ok := toFloat32(value)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		a.priorityArr.RelinquishDefault = f
		return nil
	default:
		return bacnet.ErrObjectNotWritable
	}
}

func toFloat32(v interface{}) (float32, bool) {
	switch n := v.(type) {
	case float32:
		return n, true
	case float64:
		return float32(n), true
	default:
		return 0, false
	}
}
