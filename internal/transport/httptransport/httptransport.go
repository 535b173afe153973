// Package httptransport is the reference implementation of
// transport.Transport: it POSTs a JSON-encoded
// {query, operationName, variables} body and decodes a standard
// {data, errors} GraphQL response, the same request/response shape
// internal/server.Handler serves on the other end of the wire.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	language "github.com/cacheql/cacheql/internal/language"
	"github.com/cacheql/cacheql/internal/transport"
)

// Transport executes operations against a single GraphQL HTTP endpoint.
type Transport struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithHTTPClient overrides the default http.Client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithHeader sets a static header (e.g. Authorization) sent with every
// request, in addition to whatever the per-call Request.Context
// supplies.
func WithHeader(key, value string) Option {
	return func(t *Transport) { t.headers[key] = value }
}

// New returns a Transport posting to endpoint.
func New(endpoint string, opts ...Option) *Transport {
	t := &Transport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		headers:  map[string]string{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type responseBody struct {
	Data   map[string]any  `json:"data"`
	Errors []responseError `json:"errors,omitempty"`
}

type responseError struct {
	Message string `json:"message"`
}

// Execute implements transport.Transport.
func (t *Transport) Execute(ctx context.Context, req transport.Request) (<-chan transport.Message, error) {
	body, err := json.Marshal(requestBody{
		Query:         printOperation(req.Document, req.Operation),
		OperationName: req.Operation.Name,
		Variables:     req.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("httptransport: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httptransport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	if ctxHeaders, ok := req.Context["headers"].(map[string]string); ok {
		for k, v := range ctxHeaders {
			httpReq.Header.Set(k, v)
		}
	}

	out := make(chan transport.Message, 1)
	go func() {
		defer close(out)

		resp, err := t.client.Do(httpReq)
		if err != nil {
			out <- transport.Message{Errors: []error{err}}
			return
		}
		defer resp.Body.Close()

		var parsed responseBody
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			out <- transport.Message{Errors: []error{fmt.Errorf("httptransport: decode response: %w", err)}}
			return
		}

		var errs []error
		for _, e := range parsed.Errors {
			errs = append(errs, fmt.Errorf("%s", e.Message))
		}
		out <- transport.Message{Data: parsed.Data, Errors: errs}
	}()
	return out, nil
}

// printOperation renders doc's source text for op. Since
// internal/language never retains the parsed document's original source
// string past parsing, and the operation AST has already been validated
// once by the caller that parsed it, printOperation works from the AST
// the same way gqlparser's own formatter does, but limited to what this
// transport needs: the operation keyword, name, variable definitions,
// and selection set, plus every fragment the document declares.
func printOperation(doc *language.QueryDocument, op *language.OperationDefinition) string {
	var b bytes.Buffer
	b.WriteString(string(op.Operation))
	if op.Name != "" {
		b.WriteByte(' ')
		b.WriteString(op.Name)
	}
	if len(op.VariableDefinitions) > 0 {
		b.WriteByte('(')
		for i, v := range op.VariableDefinitions {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%s:%s", v.Variable, v.Type.String())
		}
		b.WriteByte(')')
	}
	b.WriteByte(' ')
	writeSelectionSet(&b, op.SelectionSet)
	for _, frag := range doc.Fragments {
		b.WriteString(" fragment ")
		b.WriteString(frag.Name)
		b.WriteString(" on ")
		b.WriteString(frag.TypeCondition)
		b.WriteByte(' ')
		writeSelectionSet(&b, frag.SelectionSet)
	}
	return b.String()
}

func writeSelectionSet(b *bytes.Buffer, set language.SelectionSet) {
	b.WriteByte('{')
	for i, sel := range set {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch s := sel.(type) {
		case *language.Field:
			if s.Alias != "" && s.Alias != s.Name {
				fmt.Fprintf(b, "%s:", s.Alias)
			}
			b.WriteString(s.Name)
			if len(s.Arguments) > 0 {
				b.WriteByte('(')
				for j, a := range s.Arguments {
					if j > 0 {
						b.WriteByte(',')
					}
					fmt.Fprintf(b, "%s:%s", a.Name, a.Value.String())
				}
				b.WriteByte(')')
			}
			if len(s.SelectionSet) > 0 {
				b.WriteByte(' ')
				writeSelectionSet(b, s.SelectionSet)
			}
		case *language.FragmentSpread:
			fmt.Fprintf(b, "...%s", s.Name)
		case *language.InlineFragment:
			b.WriteString("...")
			if s.TypeCondition != "" {
				fmt.Fprintf(b, " on %s", s.TypeCondition)
			}
			b.WriteByte(' ')
			writeSelectionSet(b, s.SelectionSet)
		}
	}
	b.WriteByte('}')
}
