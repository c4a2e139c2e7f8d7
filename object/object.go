// Package object implements the BACnet object and property model (C7):
// a small interface shared by every object type, with commandable
// objects additionally carrying a priority array and a relinquish
// default. Dynamic dispatch over concrete object types is modeled the
// way the teacher models BACnet enumerations elsewhere in this module:
// a closed set of Go types behind one interface, not a class hierarchy.
package object

import (
	"fmt"
	"sync"

	"github.com/edgeo-scada/bacnet"
)

// PriorityArraySlots is the fixed number of priority-array slots
// ASHRAE 135 clause 19.2.3 defines for commandable objects.
const PriorityArraySlots = 16

// DefaultWritePriority is the priority used when an operator writes
// present-value directly rather than through WriteProperty's priority
// parameter (ASHRAE 135 clause 19.1, "manual operator" priority 8).
const DefaultWritePriority = 8

// Object is implemented by every BACnet object variant stored in the
// database (C13). It intentionally mirrors the three operations
// spec.md names for C7, plus PropertyList for ReadPropertyMultiple's
// ALL pseudo-index.
type Object interface {
	Identifier() bacnet.ObjectIdentifier
	Name() string
	GetProperty(id bacnet.PropertyIdentifier) (interface{}, error)
	SetProperty(id bacnet.PropertyIdentifier, value interface{}, priority *uint8) error
	IsPropertyWritable(id bacnet.PropertyIdentifier) bool
	PropertyList() []bacnet.PropertyIdentifier
}

// Base carries the fields common to every object variant: identifier,
// name, and a generic extra-property bag for the properties that are
// not given first-class struct fields by the concrete type. It is
// embedded by every concrete object type.
type Base struct {
	mu    sync.RWMutex
	ID    bacnet.ObjectIdentifier
	Nm    string
	Extra map[bacnet.PropertyIdentifier]interface{}
}

// NewBase constructs a Base with an empty extra-property bag.
func NewBase(id bacnet.ObjectIdentifier, name string) Base {
	return Base{ID: id, Nm: name, Extra: make(map[bacnet.PropertyIdentifier]interface{})}
}

func (b *Base) Identifier() bacnet.ObjectIdentifier { return b.ID }
func (b *Base) Name() string                        { return b.Nm }

func (b *Base) getExtra(id bacnet.PropertyIdentifier) (interface{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.Extra[id]
	return v, ok
}

func (b *Base) setExtra(id bacnet.PropertyIdentifier, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Extra[id] = value
}

// PriorityArray is the 16-slot command-source ranking shared by every
// commandable object (analog/binary/multi-state output and value).
// Present-value is always derived: the first non-nil slot, scanning
// from priority 1, or RelinquishDefault when every slot is nil.
type PriorityArray struct {
	mu                sync.RWMutex
	slots             [PriorityArraySlots]interface{}
	RelinquishDefault interface{}
}

// Write sets slot priority (1..16) to value. A nil value releases the
// slot. Priority is 1-indexed per ASHRAE 135; slot[0] is priority 1.
func (p *PriorityArray) Write(priority uint8, value interface{}) error {
	if priority < 1 || priority > PriorityArraySlots {
		return bacnet.ErrInvalidPriority
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[priority-1] = value
	return nil
}

// PresentValue returns the effective value (first non-nil slot, lowest
// priority number wins) and the effective priority, or (relinquish
// default, 0) when every slot is nil — 0 means "no active command".
func (p *PriorityArray) PresentValue() (interface{}, uint8) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, v := range p.slots {
		if v != nil {
			return v, uint8(i + 1)
		}
	}
	return p.RelinquishDefault, 0
}

// Slots returns a copy of the 16 priority slots, for encoding the
// priority-array property.
func (p *PriorityArray) Slots() [PriorityArraySlots]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slots
}

// StatusFlags derives the four-bit status-flags bitstring an object
// reports: a commandable object is "overridden" when a priority above
// the manual-operator slot (8) is active.
func StatusFlagsFor(p *PriorityArray, inAlarm, fault, outOfService bool) bacnet.StatusFlags {
	_, prio := p.PresentValue()
	overridden := prio != 0 && prio < DefaultWritePriority
	return bacnet.StatusFlags{InAlarm: inAlarm, Fault: fault, Overridden: overridden, OutOfService: outOfService}
}

func unknownPropertyErr(id bacnet.PropertyIdentifier) error {
	return fmt.Errorf("%w: %s", bacnet.ErrPropertyNotFound, id)
}
