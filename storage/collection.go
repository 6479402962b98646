package storage

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// record is implemented by every stored entity type (*Playlist, *Stream,
// *Source). It gives the generic collection uniform access to the ID and
// the soft-delete timestamp.
type record interface {
	recordID() string
	setRecordID(id string)
	deletedAt() *time.Time
	setDeletedAt(t *time.Time)
}

// collection holds all records of one entity type, keyed by ID. The store
// writes out every entity type with identical soft-delete semantics, so the
// per-type method bodies live here once. Callers hold the store lock.
type collection[T record] struct {
	entity string
	items  map[string]T
}

func newCollection[T record](entity string) *collection[T] {
	return &collection[T]{entity: entity, items: make(map[string]T)}
}

func (c *collection[T]) wrap(op, id string, err error) error {
	return &StorageError{Op: op, Entity: c.entity, ID: id, Err: err}
}

// add inserts a new record, assigning a UUID if the ID is empty. The deleted
// timestamp is always cleared on insert.
func (c *collection[T]) add(e T) error {
	if e.recordID() == "" {
		e.setRecordID(uuid.NewString())
	}
	if _, exists := c.items[e.recordID()]; exists {
		return c.wrap("add", e.recordID(), ErrAlreadyExists)
	}
	e.setDeletedAt(nil)
	c.items[e.recordID()] = e
	return nil
}

// get returns the record for the ID. Soft-deleted records are invisible
// unless includeDeleted is set.
func (c *collection[T]) get(id string, includeDeleted bool) (T, error) {
	var zero T
	e, exists := c.items[id]
	if !exists {
		return zero, c.wrap("get", id, ErrNotFound)
	}
	if e.deletedAt() != nil && !includeDeleted {
		return zero, c.wrap("get", id, ErrNotFound)
	}
	return e, nil
}

// all returns records ordered by ID. Map iteration order varies between
// calls, so ordering by ID keeps the result stable for a given store state.
func (c *collection[T]) all(includeDeleted bool) []T {
	out := make([]T, 0, len(c.items))
	for _, e := range c.items {
		if e.deletedAt() != nil && !includeDeleted {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].recordID() < out[j].recordID() })
	return out
}

// update fully replaces an existing record.
func (c *collection[T]) update(e T) (T, error) {
	var zero T
	if _, exists := c.items[e.recordID()]; !exists {
		return zero, c.wrap("update", e.recordID(), ErrNotFound)
	}
	c.items[e.recordID()] = e
	return e, nil
}

// softDelete stamps the record as deleted now. Deleting an already-deleted
// record is a no-op returning the record unchanged.
func (c *collection[T]) softDelete(id string) (T, error) {
	var zero T
	e, exists := c.items[id]
	if !exists {
		return zero, c.wrap("delete", id, ErrNotFound)
	}
	if e.deletedAt() == nil {
		now := time.Now()
		e.setDeletedAt(&now)
	}
	return e, nil
}

// restore clears the deleted timestamp. A record that was never deleted is
// returned unchanged.
func (c *collection[T]) restore(id string) (T, error) {
	var zero T
	e, exists := c.items[id]
	if !exists {
		return zero, c.wrap("restore", id, ErrNotFound)
	}
	e.setDeletedAt(nil)
	return e, nil
}

// remove permanently erases the record, honouring the same visibility rule
// as get.
func (c *collection[T]) remove(id string, includeDeleted bool) (T, error) {
	e, err := c.get(id, includeDeleted)
	if err != nil {
		var zero T
		return zero, c.wrap("remove", id, ErrNotFound)
	}
	delete(c.items, id)
	return e, nil
}

// exists reports whether a live (non-deleted) record with the ID is present.
func (c *collection[T]) exists(id string) bool {
	e, ok := c.items[id]
	return ok && e.deletedAt() == nil
}

// encode marshals every record for the on-disk envelope.
func (c *collection[T]) encode() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(c.items))
	for id, e := range c.items {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, c.wrap("encode", id, err)
		}
		out[id] = data
	}
	return out, nil
}

// decodeRecords unmarshals raw per-ID records into a typed map. Records that
// fail to decode are skipped with a warning rather than failing the load;
// a single corrupt record must not take the whole store down.
func decodeRecords[T any, PT interface {
	*T
	record
}](raw map[string]json.RawMessage, entity string, log *zap.Logger) map[string]PT {
	out := make(map[string]PT, len(raw))
	for id, data := range raw {
		e := PT(new(T))
		if err := json.Unmarshal(data, e); err != nil {
			log.Warn("skipping corrupt record",
				zap.String("entity", entity),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		if e.recordID() == "" {
			e.setRecordID(id)
		}
		out[id] = e
	}
	return out
}
