package policy

import (
	"context"
	"time"

	"github.com/cacheql/cacheql/internal/eventbus"
	"github.com/cacheql/cacheql/internal/events"
	language "github.com/cacheql/cacheql/internal/language"
)

// MutateOptions configures Mutate, mirroring the client surface's option
// table (§6). OptimisticResult, when set, is applied as an immediate
// local write before the network round-trip begins.
type MutateOptions struct {
	OperationName    string
	Context          map[string]any
	OptimisticResult map[string]any
	OutStream        chan Message
}

// MutateOption sets one field of MutateOptions.
type MutateOption func(*MutateOptions)

func WithMutationOperationName(name string) MutateOption {
	return func(o *MutateOptions) { o.OperationName = name }
}
func WithMutationContext(ctx map[string]any) MutateOption {
	return func(o *MutateOptions) { o.Context = ctx }
}
func WithOptimisticResult(result map[string]any) MutateOption {
	return func(o *MutateOptions) { o.OptimisticResult = result }
}
func WithMutationOutStream(out chan Message) MutateOption {
	return func(o *MutateOptions) { o.OutStream = out }
}

// Mutate runs the §4.5.2 mutation flow for doc against variables.
func (e *Engine) Mutate(ctx context.Context, doc *language.QueryDocument, variables map[string]any, opts ...MutateOption) (<-chan Message, error) {
	cfg := MutateOptions{}
	for _, opt := range opts {
		opt(&cfg)
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
	go e.runMutate(ctx, ro, cfg, out)
	return out, nil
}

func (e *Engine) runMutate(ctx context.Context, ro *resolvedOperation, cfg MutateOptions, out chan<- Message) {
	defer close(out)
	started := time.Now()
	eventbus.Publish(ctx, events.MutateStart{OperationName: ro.op.Name, Optimistic: cfg.OptimisticResult != nil})

	status := StatusReady
	var finalErr error
	defer func() {
		eventbus.Publish(ctx, events.MutateFinish{
			OperationName: ro.op.Name,
			NetworkStatus: string(status),
			Duration:      time.Since(started),
			Err:           finalErr,
		})
	}()

	var optimisticData map[string]any
	if cfg.OptimisticResult != nil {
		data, err := e.mergeAndReadBack(ctx, ro, cfg.OptimisticResult, false)
		if err != nil {
			status = StatusFailed
			finalErr = err
			send(ctx, out, Message{Err: err, NetworkStatus: StatusFailed})
			return
		}
		optimisticData = data
	}
	send(ctx, out, Message{Data: optimisticData, Variables: ro.ctx.Variables(), InFlight: true, NetworkStatus: StatusFetching})

	response, err := e.fetch(ctx, ro, cfg.Context)
	if err != nil {
		status = StatusFailed
		finalErr = err
		send(ctx, out, Message{Variables: ro.ctx.Variables(), NetworkStatus: StatusFailed, Err: err})
		return
	}

	merged, err := e.mergeAndReadBack(ctx, ro, response, false)
	if err != nil {
		status = StatusFailed
		finalErr = err
		send(ctx, out, Message{Variables: ro.ctx.Variables(), NetworkStatus: StatusFailed, Err: err})
		return
	}
	send(ctx, out, Message{Data: merged, Variables: ro.ctx.Variables(), InFlight: false, NetworkStatus: StatusReady})
}
