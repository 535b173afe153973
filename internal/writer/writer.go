// Package writer implements the Writer (§4.3): it merges a server
// response into the store by rewriting response keys to field-keys,
// namespacing sub-maps by their __typename, attaching cache markers to
// sub-maps with no identifying field, splitting the result into entity
// records, and merging those records into the store field-wise.
//
// The traversal shape is grounded on internal/executor/fields.go's
// collectFields/collectFieldsImpl recursion, inverted: the teacher walks
// top-down deciding what to *ask* the resolver for; this package walks
// the Selection Walker's tree bottom-up deciding what to *do* with a
// value that has already been asked for and returned. Processing a
// node's children before the node itself (an ordinary post-order
// recursive descent) gives the same guarantee as the §4.3 "sort by
// descending path length" instruction without needing to materialize
// and sort internal/selection.Paths explicitly: a child map's keys and
// markers are always settled before its parent decides whether the
// child becomes a reference.
package writer

import (
	"strconv"

	cerr "github.com/cacheql/cacheql/internal/cerr"
	"github.com/cacheql/cacheql/internal/selection"
	"github.com/cacheql/cacheql/internal/store"
)

// typenameField is the well-known GraphQL introspection field a written
// response's sub-maps carry their runtime type under.
const typenameField = "__typename"

// rootNamespace prefixes every top-level selection's namespaced-key when
// it is used to build a cache marker, so a marker reads as a path from
// the store's root record (e.g. "root.items.0") rather than from the
// bare operation root internal/selection.Walker uses ("items.0").
const rootNamespace = "root"

// IDAttrs reports whether fieldKey belongs to the store's configured set
// of identifying fields. Passed in rather than a *store.Store so this
// package stays decoupled from store construction.
type IDAttrs func(fieldKey string) bool

// Write merges response into the store reachable through s, rooted at
// tree (the operation's walked selections). For a query (isQuery true)
// the response's top-level map is hoisted into the store under
// store.RootRef, per §4.3 step 1, and Write returns store.RootRef as the
// resolved top-level value.
//
// For a mutation, the literal algorithm never attaches the root marker,
// so the top-level map is never hoisted into its own entity: its fields
// are still individually normalized (any field whose value has an
// identifying field or cache marker is split out into the store exactly
// as for a query), but the transformed top-level map itself is only
// returned to the caller, not persisted. The policy engine's mutation
// flow (§4.5.2) uses this returned map directly to read back the
// mutation's result, via internal/reader.PullFromResolved, instead of
// re-resolving a stored reference.
func Write(s *store.Store, tree []*selection.Annotated, response map[string]any, isQuery bool) (*store.Snapshot, any, error) {
	rewritten, err := rewriteObject(response, tree, s.IsIDAttr, s.CacheKeyField())
	if err != nil {
		return nil, nil, err
	}

	if isQuery {
		rewritten[s.CacheKeyField()] = store.RootMarker
	}

	writes := map[store.Ref]store.Record{}
	top, err := normalize(rewritten, s.CacheKeyField(), s.IsIDAttr, writes)
	if err != nil {
		return nil, nil, err
	}

	snap := s.ApplyWrites(writes)
	return snap, top, nil
}

// rewriteObject applies §4.3 step 3 to m's immediate children named by
// sels: each selected value is relocated from its response key (alias or
// field name) to its field-key, and any map or sequence-of-maps value is
// recursively rewritten, typename-namespaced, and marker-attached before
// being placed in the result.
func rewriteObject(m map[string]any, sels []*selection.Annotated, idAttrs IDAttrs, cacheKeyField string) (map[string]any, error) {
	out := make(map[string]any, len(sels))
	for _, s := range sels {
		raw, present := m[s.ResponseKey()]
		if !present {
			continue
		}
		val, err := rewriteValue(raw, s, idAttrs, cacheKeyField)
		if err != nil {
			return nil, err
		}
		out[s.FieldKey] = val
	}
	return out, nil
}

// rewriteValue dispatches a single selected raw value: scalars pass
// through; a map recurses into its own children first, then receives
// typename-namespacing and marker-attachment under s's namespaced-key; a
// sequence of maps does the same elementwise, suffixing the marker with
// ".<index>" for non-entity elements.
func rewriteValue(raw any, s *selection.Annotated, idAttrs IDAttrs, cacheKeyField string) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(s.Children) == 0 {
			return v, nil
		}
		child, err := rewriteObject(v, s.Children, idAttrs, cacheKeyField)
		if err != nil {
			return nil, err
		}
		return finishMap(child, rootNamespace+"."+s.NamespacedKey, idAttrs, cacheKeyField), nil
	case []any:
		if len(s.Children) == 0 {
			return v, nil
		}
		out := make([]any, len(v))
		for i, elem := range v {
			m, ok := elem.(map[string]any)
			if !ok {
				out[i] = elem
				continue
			}
			child, err := rewriteObject(m, s.Children, idAttrs, cacheKeyField)
			if err != nil {
				return nil, err
			}
			marker := markerFor(rootNamespace+"."+s.NamespacedKey, i)
			out[i] = finishMap(child, marker, idAttrs, cacheKeyField)
		}
		return out, nil
	default:
		return v, nil
	}
}

func markerFor(namespacedKey string, index int) string {
	return namespacedKey + "." + strconv.Itoa(index)
}

// finishMap applies the typename-namespacing and conditional
// marker-attachment bullets of §4.3 step 3 to a map whose own fields
// have already been rewritten by rewriteObject.
func finishMap(m map[string]any, marker string, idAttrs IDAttrs, cacheKeyField string) map[string]any {
	if tn, ok := m[typenameField].(string); ok && tn != "" {
		namespaced := make(map[string]any, len(m))
		for k, v := range m {
			namespaced[tn+"/"+k] = v
		}
		m = namespaced
	}
	if !hasIdentifyingField(m, idAttrs) {
		m[cacheKeyField] = marker
	}
	return m
}

func hasIdentifyingField(m map[string]any, idAttrs IDAttrs) bool {
	for k := range m {
		if idAttrs(k) {
			return true
		}
	}
	return false
}

// normalize implements §4.3 step 4 and 5: it splits m into entity
// records, recording each into writes keyed by the record's reference,
// and returns the value that should replace m in its parent (a Ref if m
// itself qualified as an entity, or the map itself — with any of its own
// map-valued fields already replaced by references — otherwise).
func normalize(m map[string]any, cacheKeyField string, idAttrs IDAttrs, writes map[store.Ref]store.Record) (any, error) {
	resolved := make(map[string]any, len(m))
	for k, v := range m {
		rv, err := normalizeValue(v, cacheKeyField, idAttrs, writes)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}

	ref, ok := refOf(resolved, cacheKeyField, idAttrs)
	if !ok {
		if err := checkMixed(resolved, cacheKeyField); err != nil {
			return nil, err
		}
		return resolved, nil
	}

	writes[ref] = mergeRecord(writes[ref], resolved)
	return ref, nil
}

func normalizeValue(v any, cacheKeyField string, idAttrs IDAttrs, writes map[store.Ref]store.Record) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return normalize(t, cacheKeyField, idAttrs, writes)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			rv, err := normalizeValue(elem, cacheKeyField, idAttrs, writes)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return coerceHomogeneousRefs(out), nil
	default:
		return v, nil
	}
}

// coerceHomogeneousRefs returns a []store.Ref when every element of out
// is a store.Ref (the usual case for a normalized list of objects, since
// the writer marks every non-entity element of a selected list — see
// rewriteValue — so every element always qualifies for its own
// reference), otherwise out unchanged.
func coerceHomogeneousRefs(out []any) any {
	if len(out) == 0 {
		return out
	}
	refs := make([]store.Ref, 0, len(out))
	for _, v := range out {
		ref, ok := v.(store.Ref)
		if !ok {
			return out
		}
		refs = append(refs, ref)
	}
	return refs
}

// refOf reports whether resolved qualifies as its own entity: either it
// carries one of the store's identifying fields (whose field-key doubles
// as the reference's identity field), or it carries the cache-marker
// field attached by finishMap or by Write's root handling.
func refOf(resolved map[string]any, cacheKeyField string, idAttrs IDAttrs) (store.Ref, bool) {
	if marker, ok := resolved[cacheKeyField].(string); ok {
		return store.NewMarkerRef(marker), true
	}
	for k, v := range resolved {
		if k == cacheKeyField {
			continue
		}
		if idAttrs(k) {
			return store.NewEntityRef(k, v), true
		}
	}
	return store.Ref{}, false
}

// checkMixed enforces the §4.3 mixed-map rule: resolved (a map with
// neither an identifying field nor a cache marker, i.e. one the writer
// never reached through a selection — see the package doc comment) may
// not have a mix of entity-valued and non-entity-valued fields.
func checkMixed(resolved map[string]any, cacheKeyField string) error {
	sawEntity, sawPlain := false, false
	for k, v := range resolved {
		if k == cacheKeyField {
			continue
		}
		if isEntityValue(v) {
			sawEntity = true
		} else {
			sawPlain = true
		}
	}
	if sawEntity && sawPlain {
		return cerr.Wrap(cerr.ErrMixedEntityMap, "map has both entity and non-entity values", nil)
	}
	return nil
}

func isEntityValue(v any) bool {
	switch v.(type) {
	case store.Ref, []store.Ref:
		return true
	default:
		return false
	}
}

func mergeRecord(existing store.Record, patch map[string]any) store.Record {
	out := make(store.Record, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
