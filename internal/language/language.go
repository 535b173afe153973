package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses a query or mutation document. The returned document's
// Operations and Fragments fields are what the rest of cacheql walks.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetOperation returns the operation named name, or the document's sole
// operation when name is empty and exactly one is present.
func GetOperation(doc *QueryDocument, name string) *OperationDefinition {
	if name != "" {
		return doc.Operations.ForName(name)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}

// GetFragment returns the fragment definition named name, or nil.
func GetFragment(doc *QueryDocument, name string) *FragmentDefinition {
	return doc.Fragments.ForName(name)
}
