package reader

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	language "github.com/cacheql/cacheql/internal/language"
	opctx "github.com/cacheql/cacheql/internal/opctx"
	"github.com/cacheql/cacheql/internal/selection"
	"github.com/cacheql/cacheql/internal/store"
	"github.com/cacheql/cacheql/internal/writer"
	"github.com/stretchr/testify/require"
)

func walk(t *testing.T, query string) (*language.OperationDefinition, []*selection.Annotated) {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	op := doc.Operations[0]
	ctx := opctx.New(op, nil)
	tree, err := selection.New(doc).Walk(op.SelectionSet, ctx)
	require.NoError(t, err)
	return op, tree
}

func TestPull_RoundTrip_ScenarioA(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	op, tree := walk(t, `{ viewer { __typename id name } }`)
	response := map[string]any{
		"viewer": map[string]any{"__typename": "Person", "id": "p1", "name": "Ada"},
	}
	snap, _, err := writer.Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	got, err := Pull(snap, tree, store.RootRef)
	require.NoError(t, err)
	if diff := cmp.Diff(response, got); diff != "" {
		t.Errorf("pulled data mismatch (-want +got):\n%s", diff)
	}
}

func TestPull_RoundTrip_ScenarioC_ListOrderPreserved(t *testing.T) {
	s := store.New()
	op, tree := walk(t, `{ items { label } }`)
	response := map[string]any{
		"items": []any{
			map[string]any{"label": "a"},
			map[string]any{"label": "b"},
		},
	}
	snap, _, err := writer.Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	got, err := Pull(snap, tree, store.RootRef)
	require.NoError(t, err)
	if diff := cmp.Diff(response, got); diff != "" {
		t.Errorf("pulled data mismatch (-want +got):\n%s", diff)
	}
}

func TestPull_RoundTrip_ScenarioD_Alias(t *testing.T) {
	s := store.New()
	op, tree := walk(t, `{ me: viewer { name } }`)
	response := map[string]any{"me": map[string]any{"name": "Ada"}}
	snap, _, err := writer.Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	got, err := Pull(snap, tree, store.RootRef)
	require.NoError(t, err)
	require.Equal(t, response, got)
}

func TestPull_MissingRootReturnsNil(t *testing.T) {
	s := store.New()
	_, tree := walk(t, `{ viewer { name } }`)
	got, err := Pull(s.Snapshot(), tree, store.RootRef)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPull_MissingFieldIsAbsentNotError(t *testing.T) {
	s := store.New(store.WithIDAttrs("Person/id"))
	op1, tree1 := walk(t, `{ viewer { __typename id name } }`)
	_, _, err := writer.Write(s, tree1, map[string]any{
		"viewer": map[string]any{"__typename": "Person", "id": "p1", "name": "Ada"},
	}, op1.Operation == language.Query)
	require.NoError(t, err)

	op2, tree2 := walk(t, `{ viewer { __typename id name age } }`)
	require.Equal(t, language.Query, op2.Operation)

	got, err := Pull(s.Snapshot(), tree2, store.RootRef)
	require.NoError(t, err)
	viewer := got["viewer"].(map[string]any)
	require.Equal(t, "Ada", viewer["name"])
	_, hasAge := viewer["age"]
	require.False(t, hasAge)
}

func TestPull_NotRefFailsWithPullNotRef(t *testing.T) {
	s := store.New()
	_, writeTree := walk(t, `{ viewer }`)
	_, _, err := writer.Write(s, writeTree, map[string]any{"viewer": "not-an-object"}, true)
	require.NoError(t, err)

	_, readTree := walk(t, `{ viewer { name } }`)
	_, err = Pull(s.Snapshot(), readTree, store.RootRef)
	require.Error(t, err)
}

func TestPull_BoundaryBehavior_NonRootMarkerRecovered(t *testing.T) {
	s := store.New()
	op, tree := walk(t, `{ viewer { profile { bio } } }`)
	response := map[string]any{
		"viewer": map[string]any{"profile": map[string]any{"bio": "hi"}},
	}
	snap, _, err := writer.Write(s, tree, response, op.Operation == language.Query)
	require.NoError(t, err)

	got, err := Pull(snap, tree, store.RootRef)
	require.NoError(t, err)
	require.Equal(t, response, got)
}
