// Package policy implements the Policy Engine (§4.5): the fetch-policy
// state machine for queries and the optimistic-write flow for
// mutations, each running as a single-threaded cooperative goroutine
// per operation (§5) that emits an ordered Message stream and closes it
// after the terminal emission.
//
// The state-machine shape — suspend only at "await the transport" and
// "deliver a message" — is grounded on internal/executor/executor.go's
// field-resolution loop, which the teacher also drives from a single
// goroutine per operation with no internal locking; retargeted here from
// resolving one field at a time against a schema to running one of four
// fixed read/fetch/merge sequences against the store. Event publication
// through internal/eventbus mirrors internal/executor's own use of the
// bus to announce field resolution.
//
// Concurrent identical queries are not deduplicated: every Query call
// runs its own state machine and, where its policy fetches, its own
// network round-trip.
package policy

import (
	"context"
	"fmt"
	"time"

	cerr "github.com/cacheql/cacheql/internal/cerr"
	"github.com/cacheql/cacheql/internal/eventbus"
	"github.com/cacheql/cacheql/internal/events"
	language "github.com/cacheql/cacheql/internal/language"
	"github.com/cacheql/cacheql/internal/opctx"
	"github.com/cacheql/cacheql/internal/opid"
	"github.com/cacheql/cacheql/internal/reader"
	"github.com/cacheql/cacheql/internal/selection"
	"github.com/cacheql/cacheql/internal/store"
	"github.com/cacheql/cacheql/internal/transport"
	"github.com/cacheql/cacheql/internal/writer"
)

// Engine ties a Store to a Transport and runs the query/mutate state
// machines against them.
type Engine struct {
	store     *store.Store
	transport transport.Transport
}

// New returns an Engine reading and writing s, fetching through t.
func New(s *store.Store, t transport.Transport) *Engine {
	return &Engine{store: s, transport: t}
}

// resolvedOperation bundles the parsed pieces every query and mutation
// needs before the state machine can run.
type resolvedOperation struct {
	doc  *language.QueryDocument
	op   *language.OperationDefinition
	ctx  *opctx.Context
	tree []*selection.Annotated
}

func resolve(doc *language.QueryDocument, operationName string, variables map[string]any) (*resolvedOperation, error) {
	op := language.GetOperation(doc, operationName)
	if op == nil {
		return nil, fmt.Errorf("cacheql: no operation %q found in document", operationName)
	}
	ctx := opctx.New(op, variables)
	tree, err := selection.New(doc).Walk(op.SelectionSet, ctx)
	if err != nil {
		return nil, err
	}
	return &resolvedOperation{doc: doc, op: op, ctx: ctx, tree: tree}, nil
}

// fetch runs one network round-trip through e.transport and publishes
// the events.NetworkFetchStart/Finish pair around it.
func (e *Engine) fetch(ctx context.Context, ro *resolvedOperation, opContext map[string]any) (map[string]any, error) {
	started := time.Now()
	eventbus.Publish(ctx, events.NetworkFetchStart{
		OperationName: ro.op.Name,
		OperationType: string(ro.op.Operation),
	})

	stream, err := e.transport.Execute(ctx, transport.Request{
		Document:  ro.doc,
		Operation: ro.op,
		Variables: ro.ctx.Variables(),
		Context:   opContext,
	})
	if err != nil {
		eventbus.Publish(ctx, events.NetworkFetchFinish{
			OperationName: ro.op.Name,
			OperationType: string(ro.op.Operation),
			Duration:      time.Since(started),
			Err:           err,
		})
		return nil, cerr.Wrap(cerr.ErrNetwork, ro.op.Name, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-stream:
		if !ok {
			err := fmt.Errorf("cacheql: transport closed its stream without a message")
			eventbus.Publish(ctx, events.NetworkFetchFinish{OperationName: ro.op.Name, OperationType: string(ro.op.Operation), Duration: time.Since(started), Err: err})
			return nil, cerr.Wrap(cerr.ErrNetwork, ro.op.Name, err)
		}
		var msgErr error
		if len(msg.Errors) > 0 {
			msgErr = msg.Errors[0]
		}
		eventbus.Publish(ctx, events.NetworkFetchFinish{
			OperationName: ro.op.Name,
			OperationType: string(ro.op.Operation),
			Duration:      time.Since(started),
			Err:           msgErr,
		})
		if msgErr != nil {
			return nil, cerr.Wrap(cerr.ErrNetwork, ro.op.Name, msgErr)
		}
		return msg.Data, nil
	}
}

// mergeAndReadBack writes response into the store (isQuery selects
// whether the root marker is attached, per internal/writer.Write) and
// immediately reads the result back the same way the caller will see it.
func (e *Engine) mergeAndReadBack(ctx context.Context, ro *resolvedOperation, response map[string]any, isQuery bool) (map[string]any, error) {
	snap, top, err := writer.Write(e.store, ro.tree, response, isQuery)
	if err != nil {
		return nil, err
	}
	eventbus.Publish(ctx, events.CacheWrite{OperationName: ro.op.Name, EntityCount: snap.Len()})

	var data map[string]any
	if isQuery {
		data, err = reader.Pull(snap, ro.tree, store.RootRef)
	} else if resolved, ok := top.(map[string]any); ok {
		data, err = reader.PullFromResolved(snap, ro.tree, resolved)
	}
	if err != nil {
		return nil, err
	}
	eventbus.Publish(ctx, events.CacheRead{OperationName: ro.op.Name, RootMissing: data == nil})
	return data, nil
}

func (e *Engine) localRead(ctx context.Context, ro *resolvedOperation) (map[string]any, error) {
	snap := e.store.Snapshot()
	data, err := reader.Pull(snap, ro.tree, store.RootRef)
	if err != nil {
		return nil, err
	}
	eventbus.Publish(ctx, events.CacheRead{OperationName: ro.op.Name, RootMissing: data == nil})
	return data, nil
}

// send delivers msg on out unless ctx has already been cancelled, in
// which case it is dropped — the Go rendering of §5's "closing the
// output stream cancels delivery of further messages": callers cancel
// by cancelling ctx rather than by closing a channel they do not own.
func send(ctx context.Context, out chan<- Message, msg Message) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func withOpID(ctx context.Context) (context.Context, int64) {
	return opid.NewContext(ctx)
}
