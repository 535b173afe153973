package store

import (
	"fmt"
	"sync/atomic"
)

// RootMarker is the cache-marker value attached to the store's root
// record (§3, §6 "entities" default).
const RootMarker = "root"

// DefaultCacheKeyField is the reserved field name a record's cache marker
// is stored under when a store is built without an explicit cache-key
// option.
const DefaultCacheKeyField = "cache-marker"

// Ref is an Entity Reference: either an identity pair drawn from the
// store's id-attrs, or a synthetic marker string. Ref is comparable and
// is used directly as a Snapshot map key.
type Ref struct {
	Field  string
	Value  any
	Marker string
}

// RootRef is the reference every query and mutation result tree descends
// from.
var RootRef = Ref{Marker: RootMarker}

// NewEntityRef returns the reference for an identified entity.
func NewEntityRef(field string, value any) Ref {
	return Ref{Field: field, Value: value}
}

// NewMarkerRef returns the reference for a non-identified record, keyed
// by its synthetic path-derived marker string.
func NewMarkerRef(marker string) Ref {
	return Ref{Marker: marker}
}

// IsMarker reports whether r is marker-keyed (root or path-derived)
// rather than identity-keyed.
func (r Ref) IsMarker() bool { return r.Marker != "" }

// String renders r for diagnostics and event payloads.
func (r Ref) String() string {
	if r.IsMarker() {
		return "marker:" + r.Marker
	}
	return fmt.Sprintf("%s=%v", r.Field, r.Value)
}

// Record is an Entity Record: a mapping from field-key (internal/key) to
// field-value. See the package doc comment for the field-value kinds a
// Record's values take on.
type Record map[string]any

// Clone returns a shallow copy of r; values are not deep-copied, since
// Ref, primitives, and []Ref/[]any are all treated as immutable once
// written.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AsRef reports whether v is a single entity reference.
func AsRef(v any) (Ref, bool) {
	ref, ok := v.(Ref)
	return ref, ok
}

// AsRefSlice reports whether v is a homogeneous sequence of entity
// references.
func AsRefSlice(v any) ([]Ref, bool) {
	refs, ok := v.([]Ref)
	return refs, ok
}

// Snapshot is an immutable view of the entity map at one point in time.
// It is safe to read concurrently from multiple goroutines; producing a
// new Snapshot never mutates an existing one.
type Snapshot struct {
	entities map[Ref]Record
}

// emptySnapshot is the zero state a Store starts from when no initial
// entities option is supplied.
func emptySnapshot() *Snapshot {
	return &Snapshot{entities: map[Ref]Record{}}
}

// Get returns the record for ref, if present.
func (s *Snapshot) Get(ref Ref) (Record, bool) {
	if s == nil {
		return nil, false
	}
	rec, ok := s.entities[ref]
	return rec, ok
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entities)
}

// Merge returns a new Snapshot with each record in writes merged,
// field-key by field-key, into s: a field present in writes overwrites
// the corresponding field in s's existing record for that reference,
// last-writer-wins (invariant 2/3, §3). References in writes not present
// in s become new records; references in s absent from writes are
// carried over unchanged.
func (s *Snapshot) Merge(writes map[Ref]Record) *Snapshot {
	next := make(map[Ref]Record, len(s.entities)+len(writes))
	for ref, rec := range s.entities {
		next[ref] = rec
	}
	for ref, patch := range writes {
		existing := next[ref]
		merged := make(Record, len(existing)+len(patch))
		for f, v := range existing {
			merged[f] = v
		}
		for f, v := range patch {
			merged[f] = v
		}
		next[ref] = merged
	}
	return &Snapshot{entities: next}
}

// Extract returns a defensive copy of the full entity map, keyed by
// reference. Callers that need a raw seed for Restore, or that want to
// inspect cache contents for debugging, use this rather than reaching
// into Snapshot's internals.
func (s *Snapshot) Extract() map[Ref]Record {
	out := make(map[Ref]Record, s.Len())
	if s == nil {
		return out
	}
	for ref, rec := range s.entities {
		out[ref] = rec.Clone()
	}
	return out
}

// Store is the Entity Store (§4.2, §6): a single atomically-swapped
// Snapshot cell plus the configuration ("id-attrs", "cache-key",
// "entities") that the Key Encoder, Writer, and Reader resolve field
// identity and cache markers against.
type Store struct {
	current       atomic.Pointer[Snapshot]
	idAttrs       map[string]bool
	cacheKeyField string
}

// Option configures a Store at construction, following the functional
// options idiom used throughout the rest of this module's ambient stack.
type Option func(*config)

type config struct {
	idAttrs       map[string]bool
	cacheKeyField string
	entities      map[Ref]Record
}

// WithIDAttrs sets the field-key names (e.g. "Person/id") the Writer
// treats as identifying fields when deciding whether a sub-map becomes
// its own entity record.
func WithIDAttrs(fields ...string) Option {
	return func(c *config) {
		for _, f := range fields {
			c.idAttrs[f] = true
		}
	}
}

// WithCacheKeyField overrides the reserved cache-marker field name. The
// default is DefaultCacheKeyField.
func WithCacheKeyField(name string) Option {
	return func(c *config) { c.cacheKeyField = name }
}

// WithEntities seeds the store with an initial entity map, e.g. state
// rehydrated from a previous process.
func WithEntities(entities map[Ref]Record) Option {
	return func(c *config) {
		for ref, rec := range entities {
			c.entities[ref] = rec.Clone()
		}
	}
}

// New constructs a Store. With no options, id-attrs is empty (every
// sub-map is marker-keyed) and the cache-key field is DefaultCacheKeyField.
func New(opts ...Option) *Store {
	c := &config{
		idAttrs:       map[string]bool{},
		cacheKeyField: DefaultCacheKeyField,
		entities:      map[Ref]Record{},
	}
	for _, opt := range opts {
		opt(c)
	}
	s := &Store{idAttrs: c.idAttrs, cacheKeyField: c.cacheKeyField}
	snap := emptySnapshot()
	if len(c.entities) > 0 {
		snap = snap.Merge(c.entities)
	}
	s.current.Store(snap)
	return s
}

// IsIDAttr reports whether fieldKey is one of the store's configured
// identifying fields.
func (s *Store) IsIDAttr(fieldKey string) bool { return s.idAttrs[fieldKey] }

// CacheKeyField returns the reserved cache-marker field name.
func (s *Store) CacheKeyField() string { return s.cacheKeyField }

// Snapshot returns the store's current snapshot. The returned value is
// immutable and safe to retain across concurrent reads.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// ApplyWrites merges writes into the store's current snapshot, retrying
// under CAS if a concurrent write raced it — the read-modify-CAS
// generalization of internal/eventbus.Bus's atomic.Pointer swap (§5).
func (s *Store) ApplyWrites(writes map[Ref]Record) *Snapshot {
	for {
		cur := s.current.Load()
		next := cur.Merge(writes)
		if s.current.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Restore replaces the store's entire snapshot with entities, discarding
// whatever was previously cached. Used to seed a store from state
// extracted via Snapshot.Extract.
func (s *Store) Restore(entities map[Ref]Record) {
	snap := emptySnapshot().Merge(entities)
	s.current.Store(snap)
}
