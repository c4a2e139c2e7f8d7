// Package objectdb implements the object database (C13): an
// identifier-keyed store with type and name secondary indices, a
// monotonic revision counter, and reader-writer concurrency, grounded
// in the reader-writer-lock-protected map pattern the teacher's
// client.go uses for its device and subscription caches (client.go's
// devicesMu/devices, covMu/covSubs).
package objectdb

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edgeo-scada/bacnet"
	"github.com/edgeo-scada/bacnet/object"
)

// Database is an in-memory BACnet object store. Persistence is
// explicitly out of scope; the zero value is not usable, use New.
type Database struct {
	mu           sync.RWMutex
	objects      map[bacnet.ObjectIdentifier]object.Object
	byType       map[bacnet.ObjectType]map[bacnet.ObjectIdentifier]struct{}
	byName       map[string]bacnet.ObjectIdentifier
	revision     uint32
	lastModified time.Time
	deviceID     bacnet.ObjectIdentifier
}

// New creates a database with its mandatory singleton Device object
// already installed.
func New(deviceInstance uint32, deviceName string, vendorID uint16) *Database {
	db := &Database{
		objects: make(map[bacnet.ObjectIdentifier]object.Object),
		byType:  make(map[bacnet.ObjectType]map[bacnet.ObjectIdentifier]struct{}),
		byName:  make(map[string]bacnet.ObjectIdentifier),
	}
	dev := object.NewDevice(deviceInstance, deviceName, vendorID, db.objectListSnapshot)
	db.deviceID = dev.Identifier()
	db.insertLocked(dev)
	return db
}

// DeviceID returns the identifier of the mandatory Device object.
func (db *Database) DeviceID() bacnet.ObjectIdentifier {
	return db.deviceID
}

func (db *Database) objectListSnapshot() []bacnet.ObjectIdentifier {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]bacnet.ObjectIdentifier, 0, len(db.objects))
	for id := range db.objects {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Instance < out[j].Instance
	})
	return out
}

func (db *Database) insertLocked(o object.Object) {
	id := o.Identifier()
	db.objects[id] = o
	if db.byType[id.Type] == nil {
		db.byType[id.Type] = make(map[bacnet.ObjectIdentifier]struct{})
	}
	db.byType[id.Type][id] = struct{}{}
	if o.Name() != "" {
		db.byName[o.Name()] = id
	}
	db.bumpRevisionLocked()
}

func (db *Database) bumpRevisionLocked() {
	db.revision++
	db.lastModified = time.Now()
}

// CreateObject adds a new object. It is rejected if the identifier
// already exists or the name collides with another object (names are
// unique within a device per spec.md's data model).
func (db *Database) CreateObject(o object.Object) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := o.Identifier()
	if _, exists := db.objects[id]; exists {
		return bacnet.ErrObjectExists
	}
	if o.Name() != "" {
		if _, exists := db.byName[o.Name()]; exists {
			return fmt.Errorf("%w: name %q already in use", bacnet.ErrObjectExists, o.Name())
		}
	}
	db.insertLocked(o)
	return nil
}

// DeleteObject removes an object by identifier. The Device object can
// never be removed. Idempotent: deleting a missing id is not an error.
func (db *Database) DeleteObject(id bacnet.ObjectIdentifier) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if id == db.deviceID {
		return fmt.Errorf("%w: the device object cannot be deleted", bacnet.ErrObjectNotWritable)
	}
	o, ok := db.objects[id]
	if !ok {
		return nil
	}
	delete(db.objects, id)
	delete(db.byType[id.Type], id)
	if len(db.byType[id.Type]) == 0 {
		delete(db.byType, id.Type)
	}
	if o.Name() != "" && db.byName[o.Name()] == id {
		delete(db.byName, o.Name())
	}
	db.bumpRevisionLocked()
	return nil
}

// Get looks up an object by identifier.
func (db *Database) Get(id bacnet.ObjectIdentifier) (object.Object, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[id]
	return o, ok
}

// GetByName looks up an object by its (unique) name.
func (db *Database) GetByName(name string) (object.Object, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.byName[name]
	if !ok {
		return nil, false
	}
	return db.objects[id], true
}

// ListByType returns the identifiers of every object of the given type.
func (db *Database) ListByType(t bacnet.ObjectType) []bacnet.ObjectIdentifier {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ids := make([]bacnet.ObjectIdentifier, 0, len(db.byType[t]))
	for id := range db.byType[t] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Instance < ids[j].Instance })
	return ids
}

// NextInstance returns max_instance(type)+1, or 0 if no objects of
// that type exist, per spec.md's C13 contract.
func (db *Database) NextInstance(t bacnet.ObjectType) uint32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var max uint32
	found := false
	for id := range db.byType[t] {
		if !found || id.Instance > max {
			max = id.Instance
			found = true
		}
	}
	if !found {
		return 0
	}
	return max + 1
}

// ReadProperty reads a property off the identified object, mutating no
// state — a convenience wrapper so callers need not Get+type-assert.
func (db *Database) ReadProperty(id bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier) (interface{}, error) {
	db.mu.RLock()
	o, ok := db.objects[id]
	db.mu.RUnlock()
	if !ok {
		return nil, bacnet.ErrDeviceNotFound
	}
	return o.GetProperty(prop)
}

// WriteProperty writes a property on the identified object and bumps
// the database revision on success.
func (db *Database) WriteProperty(id bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, value interface{}, priority *uint8) error {
	db.mu.Lock()
	o, ok := db.objects[id]
	db.mu.Unlock()
	if !ok {
		return bacnet.ErrDeviceNotFound
	}
	if !o.IsPropertyWritable(prop) {
		return bacnet.ErrObjectNotWritable
	}
	if err := o.SetProperty(prop, value, priority); err != nil {
		return err
	}
	db.mu.Lock()
	db.bumpRevisionLocked()
	db.mu.Unlock()
	return nil
}

// Revision returns the current monotonic revision counter.
func (db *Database) Revision() uint32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.revision
}

// LastModified returns the timestamp of the most recent mutation.
func (db *Database) LastModified() time.Time {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.lastModified
}

// Count returns the total number of objects in the database.
func (db *Database) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.objects)
}
