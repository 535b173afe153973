// Package opctx models the "operation context" of §3: the caller-supplied
// variable bindings plus the operation's declared variable list (with
// server-declared default values). The Key Encoder, Selection Walker,
// Writer, and Reader all resolve argument and directive values against a
// Context instead of carrying their own copies of this bookkeeping.
package opctx

import language "github.com/cacheql/cacheql/internal/language"

// Context bundles the pieces of an operation an encode/walk/write/read
// pass needs to resolve "$variable" references: the caller's bindings and
// the operation's own variable-definition defaults.
type Context struct {
	variables map[string]any
	defaults  map[string]*language.Value
}

// New builds a Context for op (may be nil, e.g. when walking a bare
// fragment) with the caller-supplied variable bindings. A nil variables
// map is treated as empty.
func New(op *language.OperationDefinition, variables map[string]any) *Context {
	defaults := make(map[string]*language.Value)
	if op != nil {
		for _, vd := range op.VariableDefinitions {
			if vd.DefaultValue != nil {
				defaults[vd.Variable] = vd.DefaultValue
			}
		}
	}
	if variables == nil {
		variables = map[string]any{}
	}
	return &Context{variables: variables, defaults: defaults}
}

// Variables returns the caller-supplied bindings, keyed by variable name
// without the leading "$".
func (c *Context) Variables() map[string]any { return c.variables }

// Default returns the operation's declared default AST value for name, or
// nil if none was declared.
func (c *Context) Default(name string) *language.Value {
	return c.defaults[name]
}
