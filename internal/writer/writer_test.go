package writer

import (
	"testing"

	language "github.com/cacheql/cacheql/internal/language"
	opctx "github.com/cacheql/cacheql/internal/opctx"
	"github.com/cacheql/cacheql/internal/selection"
	"github.com/cacheql/cacheql/internal/store"
	"github.com/stretchr/testify/require"
)

func walk(t *testing.T, query string, variables map[string]any) (*language.QueryDocument, *language.OperationDefinition, []*selection.Annotated) {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	op := doc.Operations[0]
	ctx := opctx.New(op, variables)
	tree, err := selection.New(doc).Walk(op.SelectionSet, ctx)
	require.NoError(t, err)
	return doc, op, tree
}

func TestWrite_ScenarioA_BasicNormalization(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	_, op, tree := walk(t, `{ viewer { __typename id name } }`, nil)

	response := map[string]any{
		"viewer": map[string]any{"__typename": "Person", "id": "p1", "name": "Ada"},
	}
	snap, top, err := Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)
	require.Equal(t, store.RootRef, top)

	personRef := store.NewEntityRef("Person/id", "p1")
	rec, ok := snap.Get(personRef)
	require.True(t, ok)
	require.Equal(t, "p1", rec["Person/id"])
	require.Equal(t, "Ada", rec["Person/name"])
	_, hasMarker := rec[s.CacheKeyField()]
	require.False(t, hasMarker)

	root, ok := snap.Get(store.RootRef)
	require.True(t, ok)
	require.Equal(t, personRef, root["viewer"])
	require.Equal(t, store.RootMarker, root[s.CacheKeyField()])
}

func TestWrite_ScenarioB_ArgumentQualifiedFieldCoexist(t *testing.T) {
	s := store.New()
	_, op1, tree1 := walk(t, `{ user(id: "u1") { name } }`, nil)
	_, _, err := writeAndSnap(t, s, tree1, map[string]any{"user": map[string]any{"name": "Ada"}}, op1.Operation == language.Query)
	require.NoError(t, err)

	_, op2, tree2 := walk(t, `{ user(id: "u2") { name } }`, nil)
	snap, _, err := writeAndSnap(t, s, tree2, map[string]any{"user": map[string]any{"name": "Grace"}}, op2.Operation == language.Query)
	require.NoError(t, err)

	root, ok := snap.Get(store.RootRef)
	require.True(t, ok)

	u1, ok := root[`user({"id":"u1"})`].(store.Ref)
	require.True(t, ok)
	rec1, ok := snap.Get(u1)
	require.True(t, ok)
	require.Equal(t, "Ada", rec1["name"])

	u2, ok := root[`user({"id":"u2"})`].(store.Ref)
	require.True(t, ok)
	rec2, ok := snap.Get(u2)
	require.True(t, ok)
	require.Equal(t, "Grace", rec2["name"])
}

func writeAndSnap(t *testing.T, s *store.Store, tree []*selection.Annotated, response map[string]any, isQuery bool) (*store.Snapshot, any, error) {
	t.Helper()
	return Write(s, tree, response, isQuery)
}

func TestWrite_ScenarioC_ListWithNonEntityElements(t *testing.T) {
	s := store.New()
	_, op, tree := walk(t, `{ items { label } }`, nil)

	response := map[string]any{
		"items": []any{
			map[string]any{"label": "a"},
			map[string]any{"label": "b"},
		},
	}
	snap, _, err := Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	root, ok := snap.Get(store.RootRef)
	require.True(t, ok)
	refs, ok := root["items"].([]store.Ref)
	require.True(t, ok)
	require.Len(t, refs, 2)
	require.Equal(t, "root.items.0", refs[0].Marker)
	require.Equal(t, "root.items.1", refs[1].Marker)

	rec0, ok := snap.Get(refs[0])
	require.True(t, ok)
	require.Equal(t, "a", rec0["label"])
	rec1, ok := snap.Get(refs[1])
	require.True(t, ok)
	require.Equal(t, "b", rec1["label"])
}

func TestWrite_ScenarioD_AliasStoredUnderFieldKey(t *testing.T) {
	s := store.New()
	_, op, tree := walk(t, `{ me: viewer { name } }`, nil)

	response := map[string]any{"me": map[string]any{"name": "Ada"}}
	snap, _, err := Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	root, ok := snap.Get(store.RootRef)
	require.True(t, ok)
	ref, ok := root["viewer"].(store.Ref)
	require.True(t, ok)
	rec, ok := snap.Get(ref)
	require.True(t, ok)
	require.Equal(t, "Ada", rec["name"])
}

func TestWrite_Idempotent(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	_, op, tree := walk(t, `{ viewer { __typename id name } }`, nil)
	response := map[string]any{
		"viewer": map[string]any{"__typename": "Person", "id": "p1", "name": "Ada"},
	}

	snap1, _, err := Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)
	snap2, _, err := Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	rec1, _ := snap1.Get(store.NewEntityRef("Person/id", "p1"))
	rec2, _ := snap2.Get(store.NewEntityRef("Person/id", "p1"))
	require.Equal(t, rec1, rec2)
}

func TestWrite_FieldLevelLastWriterWinsAcrossDifferentSelections(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	_, op1, tree1 := walk(t, `{ viewer { __typename id name } }`, nil)
	_, _, err := Write(s, tree1, map[string]any{
		"viewer": map[string]any{"__typename": "Person", "id": "p1", "name": "Ada"},
	}, op1.Operation == language.Query)
	require.NoError(t, err)

	_, op2, tree2 := walk(t, `{ viewer { __typename id age } }`, nil)
	snap, _, err := Write(s, tree2, map[string]any{
		"viewer": map[string]any{"__typename": "Person", "id": "p1", "age": 36},
	}, op2.Operation == language.Query)
	require.NoError(t, err)

	rec, ok := snap.Get(store.NewEntityRef("Person/id", "p1"))
	require.True(t, ok)
	require.Equal(t, "Ada", rec["Person/name"])
	require.Equal(t, 36, rec["Person/age"])
}

func TestWrite_MixedEntityMapFails(t *testing.T) {
	// The top-level map of a mutation is never marker-attached (it is not
	// reached via any selection, see the package doc comment), so if its
	// own fields resolve to a mix of entity references ("addUser", which
	// has an identifying field) and plain scalars ("clientMutationId"),
	// the mixed-map rule applies directly to it.
	s := store.New(store.WithIDAttrs("Person/id"))
	doc, err := language.ParseQuery(`mutation M { addUser(name: "Ada") { __typename id name } clientMutationId }`)
	require.NoError(t, err)
	op := doc.Operations[0]
	ctx := opctx.New(op, nil)
	tree, err := selection.New(doc).Walk(op.SelectionSet, ctx)
	require.NoError(t, err)

	response := map[string]any{
		"addUser":          map[string]any{"__typename": "Person", "id": "u5", "name": "Ada"},
		"clientMutationId": "abc",
	}
	_, _, err = Write(s, tree, response, op.Operation == language.Query)
	require.Error(t, err)
}

func TestWrite_Mutation_TopLevelNotHoistedUnderRoot(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	doc, err := language.ParseQuery(`mutation M { addUser(name: "Ada") { __typename id name } }`)
	require.NoError(t, err)
	op := doc.Operations[0]
	ctx := opctx.New(op, nil)
	tree, err := selection.New(doc).Walk(op.SelectionSet, ctx)
	require.NoError(t, err)

	response := map[string]any{
		"addUser": map[string]any{"__typename": "Person", "id": "u5", "name": "Ada"},
	}
	snap, top, err := Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	topMap, ok := top.(map[string]any)
	require.True(t, ok)
	ref, ok := topMap[`addUser({"name":"Ada"})`].(store.Ref)
	require.True(t, ok)
	require.Equal(t, store.NewEntityRef("Person/id", "u5"), ref)

	_, ok = snap.Get(store.RootRef)
	require.False(t, ok)

	rec, ok := snap.Get(ref)
	require.True(t, ok)
	require.Equal(t, "Ada", rec["Person/name"])
}
