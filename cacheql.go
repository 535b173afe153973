// Package cacheql is a normalized, in-memory GraphQL result cache with a
// fetch-policy-driven query/mutate surface, in the spirit of Apollo
// Client's InMemoryCache and the GraphQL clients it inspired.
//
// A Store wraps the cache proper (internal/store), the selection-walking
// writer and reader (internal/writer, internal/reader), and the
// fetch-policy state machine (internal/policy) behind a small public
// surface: Query, Mutate, and a handful of functional Options.
package cacheql

import (
	"context"

	language "github.com/cacheql/cacheql/internal/language"
	"github.com/cacheql/cacheql/internal/policy"
	"github.com/cacheql/cacheql/internal/store"
	"github.com/cacheql/cacheql/internal/transport"
)

// NetworkStatus mirrors internal/policy.NetworkStatus on the public
// surface so callers never need to import an internal package to switch
// on it.
type NetworkStatus = policy.NetworkStatus

const (
	StatusReady    = policy.StatusReady
	StatusFetching = policy.StatusFetching
	StatusFailed   = policy.StatusFailed
)

// Message is one delivery on a Query or Mutate result stream.
type Message = policy.Message

// FetchPolicy names one of the four query fetch strategies (§4.5.1).
type FetchPolicy = policy.FetchPolicy

const (
	LocalOnly       = policy.LocalOnly
	LocalFirst      = policy.LocalFirst
	LocalThenRemote = policy.LocalThenRemote
	RemoteOnly      = policy.RemoteOnly
)

// Store is the public handle onto a normalized cache: a backing entity
// store plus the policy engine that reads and writes it through a
// Transport.
type Store struct {
	store  *store.Store
	engine *policy.Engine
}

// Option configures a Store at construction, mirroring
// internal/server.Options' functional-options idiom.
type Option func(*config)

type config struct {
	idAttrs       []string
	cacheKeyField string
}

// WithIDAttrs names the fields (in "Typename/field" form, e.g.
// "User/id") that identify an entity independently of any cache marker.
func WithIDAttrs(fields ...string) Option {
	return func(c *config) { c.idAttrs = fields }
}

// WithCacheKeyField overrides the store's cache-marker field name
// (default "cache-marker").
func WithCacheKeyField(name string) Option {
	return func(c *config) { c.cacheKeyField = name }
}

// New returns a Store reading and writing through t.
func New(t transport.Transport, opts ...Option) *Store {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var storeOpts []store.Option
	if len(cfg.idAttrs) > 0 {
		storeOpts = append(storeOpts, store.WithIDAttrs(cfg.idAttrs...))
	}
	if cfg.cacheKeyField != "" {
		storeOpts = append(storeOpts, store.WithCacheKeyField(cfg.cacheKeyField))
	}

	s := store.New(storeOpts...)
	return &Store{store: s, engine: policy.New(s, t)}
}

// QueryOption configures a single Query call.
type QueryOption = policy.QueryOption

var (
	WithOperationName = policy.WithOperationName
	WithFetchPolicy   = policy.WithFetchPolicy
	WithQueryContext  = policy.WithContext
	WithReturnPartial = policy.WithReturnPartial
)

// Query parses query, walks its selections, and runs the fetch-policy
// state machine named by WithFetchPolicy (default "local-only") against
// the store and the Store's Transport. It returns a stream of Message
// that is closed after its terminal delivery.
func (s *Store) Query(ctx context.Context, query string, variables map[string]any, opts ...QueryOption) (<-chan Message, error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	return s.engine.Query(ctx, doc, variables, opts...)
}

// MutateOption configures a single Mutate call.
type MutateOption = policy.MutateOption

var (
	WithMutationOperationName = policy.WithMutationOperationName
	WithMutationContext       = policy.WithMutationContext
	WithOptimisticResult      = policy.WithOptimisticResult
)

// Mutate parses mutation, walks its selections, and runs the §4.5.2
// mutation flow: an optional optimistic write, a network round-trip, and
// a real write with no automatic rollback of the optimistic write on
// failure (§9).
func (s *Store) Mutate(ctx context.Context, mutation string, variables map[string]any, opts ...MutateOption) (<-chan Message, error) {
	doc, err := language.ParseQuery(mutation)
	if err != nil {
		return nil, err
	}
	return s.engine.Mutate(ctx, doc, variables, opts...)
}

// Extract returns a snapshot of every entity currently held by the
// cache, suitable for persistence or for seeding a new Store via
// Restore.
func (s *Store) Extract() map[store.Ref]store.Record {
	return s.store.Snapshot().Extract()
}

// Restore replaces the cache's contents with entities, discarding
// whatever was there before.
func (s *Store) Restore(entities map[store.Ref]store.Record) {
	s.store.Restore(entities)
}
