// Package opid attaches a per-operation correlation id to a context.Context
// so events published for the same query or mutation (local read, network
// fetch, cache merge, final emission) can be grouped by a trace exporter or
// log sink.
package opid

import (
	"context"
	"math/rand"
	"time"
)

type key struct{}

// NewContext returns a copy of parent carrying a new random operation id,
// along with the id itself.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int63()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the operation id from ctx, if any.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}

func init() {
	rand.Seed(time.Now().UnixNano())
}
