// Package reader implements the Reader / Pull (§4.4): given a store
// snapshot, a walked selection tree, and a starting reference, it
// reconstructs the denormalized response tree the operation would see,
// treating a missing field as absence rather than an error.
//
// The object/list/leaf dispatch in pullValue is grounded on
// internal/executor/executor.go's value-completion recursion (the
// teacher's completeValue), retargeted from schema-driven completion —
// which asks "what type does the schema say this selection set
// produces?" — to pattern-driven pull, which asks "does the stored value
// look like a reference, a collection of references, or a leaf?" with no
// schema to consult.
package reader

import (
	"strings"

	cerr "github.com/cacheql/cacheql/internal/cerr"
	"github.com/cacheql/cacheql/internal/selection"
	"github.com/cacheql/cacheql/internal/store"
)

// Pull reconstructs the response tree for tree starting at ref. It
// returns a nil map (not an error) if ref has no record in snapshot,
// per §4.4 "returns null if the root reference is not in the store".
func Pull(snapshot *store.Snapshot, tree []*selection.Annotated, ref store.Ref) (map[string]any, error) {
	record, ok := snapshot.Get(ref)
	if !ok {
		return nil, nil
	}
	return pullFields(snapshot, record, tree)
}

// PullFromResolved reconstructs a response tree from resolved, a
// field-key-to-value map that was produced directly by a write (see
// internal/writer.Write's mutation return value) rather than fetched
// from the store by reference. It is otherwise identical to Pull.
func PullFromResolved(snapshot *store.Snapshot, tree []*selection.Annotated, resolved map[string]any) (map[string]any, error) {
	if resolved == nil {
		return nil, nil
	}
	return pullFields(snapshot, resolved, tree)
}

// pullFields folds tree over source per §4.4: source's keys are first
// denamespaced (a typename-namespaced record's "Type/field" keys are
// stripped back to "field" before matching against field-keys), then
// each selection either copies a leaf value or recurses through a
// reference or collection of references.
func pullFields(snapshot *store.Snapshot, source map[string]any, tree []*selection.Annotated) (map[string]any, error) {
	denamespaced := stripNamespace(source)
	out := make(map[string]any, len(tree))
	for _, s := range tree {
		val, present := denamespaced[s.FieldKey]
		if !present {
			continue
		}
		resolved, err := pullValue(snapshot, s, val)
		if err != nil {
			return nil, err
		}
		out[s.ResponseKey()] = resolved
	}
	return out, nil
}

// pullValue resolves a single field's stored value against s: a leaf
// selection (no children) copies val as-is; a selection with children
// expects val to be a reference or a homogeneous collection of
// references, and fails with pull-not-ref otherwise.
func pullValue(snapshot *store.Snapshot, s *selection.Annotated, val any) (any, error) {
	if len(s.Children) == 0 {
		return val, nil
	}
	switch v := val.(type) {
	case nil:
		return nil, nil
	case store.Ref:
		sub, err := Pull(snapshot, s.Children, v)
		if err != nil {
			return nil, err
		}
		return sub, nil
	case []store.Ref:
		out := make([]any, len(v))
		for i, ref := range v {
			sub, err := Pull(snapshot, s.Children, ref)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return nil, cerr.Wrap(cerr.ErrPullNotRef, s.NamespacedKey, nil)
	}
}

// stripNamespace returns a copy of record with any single leading
// "Typename/" segment removed from each key, so pullFields can match
// field-keys without knowing which typename a record was written under.
func stripNamespace(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if i := strings.IndexByte(k, '/'); i >= 0 {
			out[k[i+1:]] = v
			continue
		}
		out[k] = v
	}
	return out
}
