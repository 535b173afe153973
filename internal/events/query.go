package events

import "time"

// QueryStart is published when Store.Query begins, before the initial local
// read.
type QueryStart struct {
	OperationName string
	FetchPolicy   string
}

// QueryFinish is published after the last message of a query's stream has
// been emitted (or the stream failed).
type QueryFinish struct {
	OperationName string
	FetchPolicy   string
	NetworkStatus string
	Duration      time.Duration
	Err           error
}

// MutateStart is published when Store.Mutate begins, before any optimistic
// write.
type MutateStart struct {
	OperationName string
	Optimistic    bool
}

// MutateFinish is published after the mutation's terminal message has been
// emitted.
type MutateFinish struct {
	OperationName string
	NetworkStatus string
	Duration      time.Duration
	Err           error
}
