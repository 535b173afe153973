package policy

import (
	"context"
	"time"

	"github.com/cacheql/cacheql/internal/eventbus"
	"github.com/cacheql/cacheql/internal/events"
	language "github.com/cacheql/cacheql/internal/language"
)

// QueryOptions configures Query, mirroring the client surface's option
// table (§6).
type QueryOptions struct {
	OperationName string
	FetchPolicy   string
	Context       map[string]any
	ReturnPartial bool
	OutStream     chan Message
}

// QueryOption sets one field of QueryOptions.
type QueryOption func(*QueryOptions)

func WithOperationName(name string) QueryOption { return func(o *QueryOptions) { o.OperationName = name } }
func WithFetchPolicy(policy string) QueryOption  { return func(o *QueryOptions) { o.FetchPolicy = policy } }
func WithContext(ctx map[string]any) QueryOption { return func(o *QueryOptions) { o.Context = ctx } }
func WithReturnPartial(v bool) QueryOption        { return func(o *QueryOptions) { o.ReturnPartial = v } }
func WithOutStream(out chan Message) QueryOption  { return func(o *QueryOptions) { o.OutStream = out } }

// Query runs the §4.5.1 fetch-policy state machine for doc against
// variables, returning a receive-only stream of Message. A malformed
// fetch-policy or a missing operation is reported synchronously, per
// §7's "parse/validation failures surface synchronously".
func (e *Engine) Query(ctx context.Context, doc *language.QueryDocument, variables map[string]any, opts ...QueryOption) (<-chan Message, error) {
	cfg := QueryOptions{}
	for _, opt := range opts {
		opt(&cfg)
	}

	fp, err := ParseFetchPolicy(cfg.FetchPolicy)
	if err != nil {
		return nil, err
	}
	ro, err := resolve(doc, cfg.OperationName, variables)
	if err != nil {
		return nil, err
	}

	out := cfg.OutStream
	if out == nil {
		out = make(chan Message)
	}

	ctx, _ = withOpID(ctx)
	go e.runQuery(ctx, ro, fp, cfg, out)
	return out, nil
}

func (e *Engine) runQuery(ctx context.Context, ro *resolvedOperation, fp FetchPolicy, cfg QueryOptions, out chan<- Message) {
	defer close(out)
	started := time.Now()
	eventbus.Publish(ctx, events.QueryStart{OperationName: ro.op.Name, FetchPolicy: string(fp)})

	status := StatusReady
	var finalErr error
	defer func() {
		eventbus.Publish(ctx, events.QueryFinish{
			OperationName: ro.op.Name,
			FetchPolicy:   string(fp),
			NetworkStatus: string(status),
			Duration:      time.Since(started),
			Err:           finalErr,
		})
	}()

	local, err := e.localRead(ctx, ro)
	if err != nil {
		status = StatusFailed
		finalErr = err
		send(ctx, out, Message{Err: err, NetworkStatus: StatusFailed, Variables: ro.ctx.Variables()})
		return
	}

	switch fp {
	case LocalOnly:
		send(ctx, out, Message{Data: local, Variables: ro.ctx.Variables(), NetworkStatus: StatusReady})
		return

	case LocalFirst:
		if local != nil {
			send(ctx, out, Message{Data: local, Variables: ro.ctx.Variables(), NetworkStatus: StatusReady})
			return
		}
		send(ctx, out, Message{Data: local, Variables: ro.ctx.Variables(), InFlight: true, NetworkStatus: StatusFetching})

	case LocalThenRemote:
		send(ctx, out, Message{Data: local, Variables: ro.ctx.Variables(), InFlight: true, NetworkStatus: StatusFetching})

	case RemoteOnly:
		send(ctx, out, Message{Data: nil, Variables: ro.ctx.Variables(), InFlight: true, NetworkStatus: StatusFetching})
	}

	response, err := e.fetch(ctx, ro, cfg.Context)
	if err != nil {
		status = StatusFailed
		finalErr = err
		send(ctx, out, Message{Data: nil, Variables: ro.ctx.Variables(), NetworkStatus: StatusFailed, Err: err})
		return
	}

	merged, err := e.mergeAndReadBack(ctx, ro, response, true)
	if err != nil {
		status = StatusFailed
		finalErr = err
		send(ctx, out, Message{Variables: ro.ctx.Variables(), NetworkStatus: StatusFailed, Err: err})
		return
	}
	send(ctx, out, Message{Data: merged, Variables: ro.ctx.Variables(), NetworkStatus: StatusReady})
}
