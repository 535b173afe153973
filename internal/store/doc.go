// Package store implements the cache's data model and Entity Store (§3,
// §4.2 in the component table): a flat, immutable mapping from entity
// reference to entity record, with merge-on-write and atomic snapshot
// replacement.
//
// # Data model
//
// An Entity Reference (Ref) is an opaque identifier for a stored entity.
// Concretely it is either:
//   - an identity pair (Field, Value) drawn from the store's configured
//     id-attrs set, e.g. Ref{Field: "Person/id", Value: "p1"}; or
//   - a synthetic marker string, used for the reserved root record
//     (Marker: "root") and for sub-records with no identifying field
//     (Marker: "<dotted selection path>", optionally ".<index>" for list
//     elements).
//
// An Entity Record (Record) is a map from field-key (internal/key) to
// field-value. Following internal/executor's style of representing
// dynamic GraphQL values as plain `any` and type-switching rather than an
// explicit tagged union, a field-value is one of (by Go dynamic type):
//   - a primitive: string, float64/int, bool, or nil;
//   - Ref: a single entity reference;
//   - []Ref: a homogeneous sequence of entity references;
//   - []any: a homogeneous sequence of primitives;
//   - map[string]any: a plain sub-map (primitives, or — after
//     normalization — entity references; see internal/writer's normalize).
//
// Invariants (§3):
//  1. Every record has exactly one identifying field from the configured
//     set, OR carries the reserved cache-marker field.
//  2. Writing the same normalized response twice is idempotent (Merge is
//     a plain key overwrite: writing identical values twice is a no-op).
//  3. Reading a reference and following its references reconstructs the
//     original response for the fields that were written (see
//     internal/reader).
//  4. The marker set always includes the reserved root marker, RootRef.
//
// # Lifecycle
//
// The store is immutable from the outside: Snapshot.Merge returns a new
// Snapshot: It never mutates the receiver. Store wraps a single
// atomic.Pointer[Snapshot] cell; CompareAndSwap installs the merged
// snapshot, retrying if another write raced it — the same pattern
// internal/eventbus.Bus uses its atomic.Pointer[Bus] for the global bus,
// generalized from a single swap (eventbus.Use) to a read-modify-CAS loop
// because store writes, unlike eventbus.Use, compute their replacement
// from the current value rather than replacing it outright.
package store
