// Package transport defines the network collaborator the policy engine
// calls out to (§6 "Transport contract"). It has no concrete
// implementation of its own — see internal/transport/httptransport for
// the reference HTTP implementation — mirroring how
// internal/executor/runtime.go's Runtime interface sits between the
// teacher's executor and whatever actually resolves a field.
package transport

import (
	"context"

	language "github.com/cacheql/cacheql/internal/language"
)

// Request bundles everything a Transport needs to execute one operation.
type Request struct {
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	Variables map[string]any
	// Context is the opaque map forwarded from the client surface's
	// "context" option (§6), e.g. headers or auth tokens.
	Context map[string]any
}

// Message is one delivery on a Transport's result stream: exactly one
// per Execute call, per §6 ("delivers exactly one {data, errors?}
// message then closes").
type Message struct {
	Data   map[string]any
	Errors []error
}

// Transport is the network contract the policy engine's fetch steps
// execute against. Implementations must deliver exactly one Message (or
// a send failure communicated by closing the channel without a send,
// which the policy engine treats as a network-error) and then close the
// returned channel.
type Transport interface {
	Execute(ctx context.Context, req Request) (<-chan Message, error)
}
