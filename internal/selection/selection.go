// Package selection implements the Selection Walker (§4.2): it traverses
// an operation's selection set — expanding fragment spreads and inline
// fragments, dropping fields excluded by @skip/@include — and produces a
// tree of annotated selections carrying each field's encoded field-key
// (internal/key) and its namespaced-key (the dotted chain of field-keys
// from the root).
//
// The recursive, fragment-expanding, directive-filtering traversal is
// grounded on internal/executor/fields.go's collectFields/
// collectFieldsImpl: the same grouped-by-response-name accumulation, the
// same visitedFragments loop guard, the same @skip/@include evaluation.
// Unlike the teacher's collector, this walker has no schema: inline
// fragment and fragment spread type conditions are never checked, because
// a client cache has no concrete runtime type to check them against — the
// server has already applied type conditions by the time a response
// arrives, so a field simply won't be present if its guarding fragment's
// type didn't match.
package selection

import (
	language "github.com/cacheql/cacheql/internal/language"
	"github.com/cacheql/cacheql/internal/key"
	opctx "github.com/cacheql/cacheql/internal/opctx"
)

// Annotated is one selected field, with its encoded key and its nested
// selections (fragments already expanded, merged by response key, and
// filtered by @skip/@include).
type Annotated struct {
	Field               *language.Field
	FieldKey            string
	NamespacedKey       string
	Aliased             bool
	HasArgsOrDirectives bool
	Children            []*Annotated
}

// ResponseKey returns the key this field occupies in a raw GraphQL
// response: the alias if aliased, else the field name.
func (a *Annotated) ResponseKey() string {
	if a.Field.Alias != "" {
		return a.Field.Alias
	}
	return a.Field.Name
}

// PathEntry pairs a response path (unaliased field names from the root)
// with the annotated selections that apply to objects found at that path.
// This is the literal §4.2 output shape; internal/writer and
// internal/reader instead recurse directly over the Annotated tree, which
// gives the same result without the ambiguity of re-deriving "which source
// key got us here" from a path of unaliased names alone.
type PathEntry struct {
	Path       []string
	Selections []*Annotated
}

// Walker walks selections against a single query document, resolving
// fragment spreads from doc.Fragments.
type Walker struct {
	doc *language.QueryDocument
}

// New returns a Walker over doc's fragment definitions.
func New(doc *language.QueryDocument) *Walker {
	return &Walker{doc: doc}
}

// Walk returns the top-level annotated selections of root (typically an
// operation's selection set), with namespaced-keys rooted at "" (the
// caller conventionally roots operations at "root", see internal/store).
func (w *Walker) Walk(root language.SelectionSet, ctx *opctx.Context) ([]*Annotated, error) {
	return w.walkSet(root, ctx, "")
}

// Paths flattens tree into the §4.2 path->selections mapping, keyed by the
// dotted chain of unaliased field names from the root.
func Paths(tree []*Annotated) []*PathEntry {
	var out []*PathEntry
	var walk func(path []string, sels []*Annotated)
	walk = func(path []string, sels []*Annotated) {
		if len(sels) > 0 {
			pathCopy := make([]string, len(path))
			copy(pathCopy, path)
			out = append(out, &PathEntry{Path: pathCopy, Selections: sels})
		}
		for _, s := range sels {
			if len(s.Children) > 0 {
				child := make([]string, len(path)+1)
				copy(child, path)
				child[len(path)] = s.Field.Name
				walk(child, s.Children)
			}
		}
	}
	walk([]string{}, tree)
	return out
}

func (w *Walker) walkSet(selSet language.SelectionSet, ctx *opctx.Context, namespacePrefix string) ([]*Annotated, error) {
	groups := newFieldGroups()
	if err := w.collect(selSet, ctx, groups, make(map[string]bool)); err != nil {
		return nil, err
	}

	out := make([]*Annotated, 0, len(groups.order))
	for _, g := range groups.order {
		first := g.fields[0]
		fieldKey, err := key.Encode(first, ctx)
		if err != nil {
			return nil, err
		}
		namespacedKey := fieldKey
		if namespacePrefix != "" {
			namespacedKey = namespacePrefix + "." + fieldKey
		}

		var combined language.SelectionSet
		for _, f := range g.fields {
			combined = append(combined, f.SelectionSet...)
		}
		var children []*Annotated
		if len(combined) > 0 {
			children, err = w.walkSet(combined, ctx, namespacedKey)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, &Annotated{
			Field:               first,
			FieldKey:            fieldKey,
			NamespacedKey:       namespacedKey,
			Aliased:             first.Alias != "" && first.Alias != first.Name,
			HasArgsOrDirectives: key.HasKeySuffix(first),
			Children:            children,
		})
	}
	return out, nil
}

// fieldGroups accumulates *language.Field instances by response key,
// preserving first-seen order — the same shape as
// internal/executor/fields.go's collectedFieldMap.
type fieldGroups struct {
	order []*fieldGroup
	index map[string]int
}

type fieldGroup struct {
	responseKey string
	fields      []*language.Field
}

func newFieldGroups() *fieldGroups {
	return &fieldGroups{index: make(map[string]int)}
}

func (g *fieldGroups) add(responseKey string, f *language.Field) {
	if i, ok := g.index[responseKey]; ok {
		g.order[i].fields = append(g.order[i].fields, f)
		return
	}
	g.index[responseKey] = len(g.order)
	g.order = append(g.order, &fieldGroup{responseKey: responseKey, fields: []*language.Field{f}})
}

func (w *Walker) collect(selSet language.SelectionSet, ctx *opctx.Context, groups *fieldGroups, visited map[string]bool) error {
	for _, sel := range selSet {
		switch s := sel.(type) {
		case *language.Field:
			if !shouldInclude(s.Directives, ctx) {
				continue
			}
			responseKey := s.Alias
			if responseKey == "" {
				responseKey = s.Name
			}
			groups.add(responseKey, s)

		case *language.InlineFragment:
			if !shouldInclude(s.Directives, ctx) {
				continue
			}
			if err := w.collect(s.SelectionSet, ctx, groups, visited); err != nil {
				return err
			}

		case *language.FragmentSpread:
			if !shouldInclude(s.Directives, ctx) {
				continue
			}
			if visited[s.Name] {
				continue
			}
			visited[s.Name] = true
			frag := language.GetFragment(w.doc, s.Name)
			if frag == nil {
				continue
			}
			if !shouldInclude(frag.Directives, ctx) {
				continue
			}
			if err := w.collect(frag.SelectionSet, ctx, groups, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func shouldInclude(directives language.DirectiveList, ctx *opctx.Context) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if arg := skip.Arguments.ForName("if"); arg != nil {
			if b, ok := resolveBool(arg.Value, ctx); ok && b {
				return false
			}
		}
	}
	if include := directives.ForName("include"); include != nil {
		if arg := include.Arguments.ForName("if"); arg != nil {
			if b, ok := resolveBool(arg.Value, ctx); ok && !b {
				return false
			}
		}
	}
	return true
}

func resolveBool(v *language.Value, ctx *opctx.Context) (bool, bool) {
	if v == nil {
		return false, false
	}
	switch v.Kind {
	case language.Variable:
		if val, ok := ctx.Variables()[v.Raw]; ok {
			b, ok := val.(bool)
			return b, ok
		}
		if def := ctx.Default(v.Raw); def != nil {
			return resolveBool(def, ctx)
		}
		return false, false
	case language.BooleanValue:
		return v.Raw == "true", true
	default:
		return false, false
	}
}
