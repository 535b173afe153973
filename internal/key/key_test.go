package key

import (
	"testing"

	language "github.com/cacheql/cacheql/internal/language"
	opctx "github.com/cacheql/cacheql/internal/opctx"
	"github.com/stretchr/testify/require"
)

func parseField(t *testing.T, query string) *language.Field {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	op := doc.Operations[0]
	return op.SelectionSet[0].(*language.Field)
}

func TestEncode_BareField(t *testing.T) {
	f := parseField(t, `{ viewer { id } }`)
	ctx := opctx.New(nil, nil)
	got, err := Encode(f, ctx)
	require.NoError(t, err)
	require.Equal(t, "viewer", got)
}

func TestEncode_LiteralArgument(t *testing.T) {
	f := parseField(t, `{ user(id: "u1") { name } }`)
	ctx := opctx.New(nil, nil)
	got, err := Encode(f, ctx)
	require.NoError(t, err)
	require.Equal(t, `user({"id":"u1"})`, got)
}

func TestEncode_VariableArgument(t *testing.T) {
	doc, err := language.ParseQuery(`query Q($id: ID!) { user(id: $id) { name } }`)
	require.NoError(t, err)
	op := doc.Operations[0]
	f := op.SelectionSet[0].(*language.Field)
	ctx := opctx.New(op, map[string]any{"id": "u2"})
	got, err := Encode(f, ctx)
	require.NoError(t, err)
	require.Equal(t, `user({"id":"u2"})`, got)
}

func TestEncode_VariableFallsBackToDefault(t *testing.T) {
	doc, err := language.ParseQuery(`query Q($limit: Int = 10) { items(first: $limit) { label } }`)
	require.NoError(t, err)
	op := doc.Operations[0]
	f := op.SelectionSet[0].(*language.Field)
	ctx := opctx.New(op, nil)
	got, err := Encode(f, ctx)
	require.NoError(t, err)
	require.Equal(t, `items({"first":10})`, got)
}

func TestEncode_MissingVariableNoDefaultIsNull(t *testing.T) {
	doc, err := language.ParseQuery(`query Q($limit: Int) { items(first: $limit) { label } }`)
	require.NoError(t, err)
	op := doc.Operations[0]
	f := op.SelectionSet[0].(*language.Field)
	ctx := opctx.New(op, nil)
	got, err := Encode(f, ctx)
	require.NoError(t, err)
	require.Equal(t, `items({"first":null})`, got)
}

func TestEncode_NonStandardDirective(t *testing.T) {
	f := parseField(t, `{ viewer { name @deprecated } }`)
	name := f.SelectionSet[0].(*language.Field)
	ctx := opctx.New(nil, nil)
	got, err := Encode(name, ctx)
	require.NoError(t, err)
	require.Equal(t, "name@deprecated", got)
}

func TestEncode_SkipIncludeAreStandard(t *testing.T) {
	f := parseField(t, `{ viewer { name @skip(if: true) } }`)
	name := f.SelectionSet[0].(*language.Field)
	ctx := opctx.New(nil, nil)
	got, err := Encode(name, ctx)
	require.NoError(t, err)
	require.Equal(t, "name", got)
}

func TestEncode_Deterministic(t *testing.T) {
	f := parseField(t, `{ user(id: "u1", active: true) { name } }`)
	ctx := opctx.New(nil, nil)
	a, err := Encode(f, ctx)
	require.NoError(t, err)
	b, err := Encode(f, ctx)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestHasKeySuffix(t *testing.T) {
	bare := parseField(t, `{ viewer { id } }`)
	require.False(t, HasKeySuffix(bare))

	withArgs := parseField(t, `{ user(id: "u1") { name } }`)
	require.True(t, HasKeySuffix(withArgs))

	withDirective := parseField(t, `{ viewer @deprecated { id } }`)
	require.True(t, HasKeySuffix(withDirective))
}
