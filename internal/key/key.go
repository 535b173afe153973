// Package key implements the Key Encoder (§4.1): it derives the
// storage-side field-key for a selection from its field name, its
// resolved arguments, and its non-standard directives.
//
// Argument and directive values are read off the GraphQL AST
// (github.com/vektah/gqlparser/v2/ast, via internal/language) the same way
// internal/executor/values.go resolves field arguments against coerced
// variables — but instead of coercing to a schema-declared Go type, the
// encoder serializes straight to the canonical key string.
package key

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	cerr "github.com/cacheql/cacheql/internal/cerr"
	language "github.com/cacheql/cacheql/internal/language"
	opctx "github.com/cacheql/cacheql/internal/opctx"
)

// Encode returns the field-key for sel: the bare field name if it has
// neither arguments nor non-standard directives, otherwise the field name
// followed by ({...args...}) and any @directive({...}) suffixes, in
// source order.
func Encode(sel *language.Field, ctx *opctx.Context) (string, error) {
	if sel == nil || sel.Name == "" {
		return "", cerr.Wrap(cerr.ErrEncode, "selection missing field name", nil)
	}

	var b strings.Builder
	b.WriteString(sel.Name)

	argStr, err := encodeArgs(sel.Arguments, ctx)
	if err != nil {
		return "", err
	}
	b.WriteString(argStr)

	for _, d := range sel.Directives {
		if d.Name == "include" || d.Name == "skip" {
			continue
		}
		dargStr, err := encodeArgs(d.Arguments, ctx)
		if err != nil {
			return "", err
		}
		b.WriteByte('@')
		b.WriteString(d.Name)
		b.WriteString(dargStr)
	}

	return b.String(), nil
}

// HasKeySuffix reports whether sel would encode to something other than
// its bare field name (i.e. it carries arguments or non-standard
// directives). Selection walker uses this to flag annotated selections.
func HasKeySuffix(sel *language.Field) bool {
	if len(sel.Arguments) > 0 {
		return true
	}
	for _, d := range sel.Directives {
		if d.Name != "include" && d.Name != "skip" {
			return true
		}
	}
	return false
}

func encodeArgs(args language.ArgumentList, ctx *opctx.Context) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		v, err := encodeValue(a.Value, ctx)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf(`"%s":%s`, a.Name, v))
	}
	return "({" + strings.Join(parts, ",") + "})", nil
}

// encodeValue formats a single argument/directive-argument value per §4.1:
// strings double-quoted, numbers and booleans in source lexical form, a
// missing variable with no default resolving to null.
func encodeValue(v *language.Value, ctx *opctx.Context) (string, error) {
	if v == nil {
		return "null", nil
	}
	switch v.Kind {
	case language.Variable:
		name := v.Raw
		if val, ok := ctx.Variables()[name]; ok {
			return encodeGoValue(val), nil
		}
		if def := ctx.Default(name); def != nil {
			return encodeValue(def, ctx)
		}
		return "null", nil
	case language.IntValue, language.FloatValue, language.BooleanValue, language.EnumValue:
		return v.Raw, nil
	case language.StringValue, language.BlockValue:
		return strconv.Quote(v.Raw), nil
	case language.NullValue:
		return "null", nil
	case language.ListValue:
		parts := make([]string, 0, len(v.Children))
		for _, c := range v.Children {
			s, err := encodeValue(c.Value, ctx)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	case language.ObjectValue:
		parts := make([]string, 0, len(v.Children))
		for _, f := range v.Children {
			s, err := encodeValue(f.Value, ctx)
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%s:%s", f.Name, s))
		}
		return "{" + strings.Join(parts, ",") + "}", nil
	default:
		return "", cerr.Wrap(cerr.ErrEncode, fmt.Sprintf("unsupported value kind %v", v.Kind), nil)
	}
}

// encodeGoValue formats a caller-supplied runtime value the same way
// encodeValue formats an AST literal: strings quoted, everything else in
// its natural form.
func encodeGoValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = encodeGoValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		names := make([]string, 0, len(t))
		for n := range t {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = fmt.Sprintf("%s:%s", n, encodeGoValue(t[n]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", t)
	}
}
