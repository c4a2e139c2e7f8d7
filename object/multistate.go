package object

import "github.com/edgeo-scada/bacnet"

// MultiState models multi-state-input, multi-state-output, and
// multi-state-value objects. Present-value is a 1-based state index
// (uint32); priority-array slots hold uint32 or nil.
type MultiState struct {
	Base
	Commandable  bool
	priorityArr  *PriorityArray
	presentValue uint32
	NumberOfStates uint32
	StateText      []string
	OutOfService   bool
}

func NewMultiStateInput(instance uint32, name string, numberOfStates uint32) *MultiState {
	return &MultiState{
		Base:           NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeMultiStateInput, instance), name),
		NumberOfStates: numberOfStates,
	}
}

func NewMultiStateOutput(instance uint32, name string, numberOfStates, relinquishDefault uint32) *MultiState {
	return &MultiState{
		Base:           NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeMultiStateOutput, instance), name),
		Commandable:    true,
		priorityArr:    &PriorityArray{RelinquishDefault: relinquishDefault},
		NumberOfStates: numberOfStates,
	}
}

func NewMultiStateValue(instance uint32, name string, numberOfStates, relinquishDefault uint32) *MultiState {
	return &MultiState{
		Base:           NewBase(bacnet.NewObjectIdentifier(bacnet.ObjectTypeMultiStateValue, instance), name),
		Commandable:    true,
		priorityArr:    &PriorityArray{RelinquishDefault: relinquishDefault},
		NumberOfStates: numberOfStates,
	}
}

func (m *MultiState) presentValueAndPriority() (uint32, uint8) {
	if !m.Commandable {
		return m.presentValue, 0
	}
	v, prio := m.priorityArr.PresentValue()
	if v == nil {
		return 0, prio
	}
	return v.(uint32), prio
}

func (m *MultiState) PropertyList() []bacnet.PropertyIdentifier {
	list := []bacnet.PropertyIdentifier{
		bacnet.PropertyObjectIdentifier, bacnet.PropertyObjectName, bacnet.PropertyObjectType,
		bacnet.PropertyPresentValue, bacnet.PropertyStatusFlags, bacnet.PropertyOutOfService,
		bacnet.PropertyNumberOfStates, bacnet.PropertyStateText,
	}
	if m.Commandable {
		list = append(list, bacnet.PropertyPriorityArray, bacnet.PropertyRelinquishDefault)
	}
	return list
}

func (m *MultiState) GetProperty(id bacnet.PropertyIdentifier) (interface{}, error) {
	switch id {
	case bacnet.PropertyObjectIdentifier:
		return m.ID, nil
	case bacnet.PropertyObjectName:
		return m.Nm, nil
	case bacnet.PropertyObjectType:
		return m.ID.Type, nil
	case bacnet.PropertyPresentValue:
		v, _ := m.presentValueAndPriority()
		return v, nil
	case bacnet.PropertyStatusFlags:
		if m.Commandable {
			return StatusFlagsFor(m.priorityArr, false, false, m.OutOfService), nil
		}
		return bacnet.StatusFlags{OutOfService: m.OutOfService}, nil
	case bacnet.PropertyOutOfService:
		return m.OutOfService, nil
	case bacnet.PropertyNumberOfStates:
		return m.NumberOfStates, nil
	case bacnet.PropertyStateText:
		return m.StateText, nil
	case bacnet.PropertyPriorityArray:
		if !m.Commandable {
			return nil, unknownPropertyErr(id)
		}
		return m.priorityArr.Slots(), nil
	case bacnet.PropertyRelinquishDefault:
		if !m.Commandable {
			return nil, unknownPropertyErr(id)
		}
		return m.priorityArr.RelinquishDefault, nil
	default:
		if v, ok := m.getExtra(id); ok {
			return v, nil
		}
		return nil, unknownPropertyErr(id)
	}
}

func (m *MultiState) IsPropertyWritable(id bacnet.PropertyIdentifier) bool {
	switch id {
	case bacnet.PropertyPresentValue, bacnet.PropertyOutOfService:
		return true
	case bacnet.PropertyRelinquishDefault:
		return m.Commandable
	default:
		return false
	}
}

func (m *MultiState) SetProperty(id bacnet.PropertyIdentifier, value interface{}, priority *uint8) error {
	switch id {
	case bacnet.PropertyPresentValue:
		if !m.Commandable {
			if priority != nil {
				return bacnet.ErrObjectNotWritable
			}
			v, ok := toUint32(value)
			if !ok {
				return bacnet.ErrInvalidResponse
			}
			if v < 1 || v > m.NumberOfStates {
				return bacnet.ErrInvalidResponse
			}
			m.presentValue = v
			return nil
		}
		p := uint8(DefaultWritePriority)
		if priority != nil {
			p = *priority
		}
		if value == nil {
			return m.priorityArr.Write(p, nil)
		}
		v, ok := toUint32(value)
		if !ok || v < 1 || v > m.NumberOfStates {
			return bacnet.ErrInvalidResponse
		}
		return m.priorityArr.Write(p, v)
	case bacnet.PropertyOutOfService:
		v, ok := value.(bool)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		m.OutOfService = v
		return nil
	case bacnet.PropertyRelinquishDefault:
		if !m.Commandable {
			return bacnet.ErrObjectNotWritable
		}
		v, ok := toUint32(value)
		if !ok {
			return bacnet.ErrInvalidResponse
		}
		m.priorityArr.RelinquishDefault = v
		return nil
	default:
		return bacnet.ErrObjectNotWritable
	}
}

func toUint32(v interface{}) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case int:
		return uint32(n), true
	case uint64:
		return uint32(n), true
	default:
		return 0, false
	}
}
