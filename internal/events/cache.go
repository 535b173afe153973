package events

// CacheWrite is published each time the Writer merges a response into the
// store, one event per write call (not per entity).
type CacheWrite struct {
	OperationName string
	EntityCount   int
}

// CacheRead is published each time the Reader pulls a response tree from
// the store.
type CacheRead struct {
	OperationName string
	RootMissing   bool
}
