package events

import "time"

// NetworkFetchStart is published immediately before the transport's
// Execute is invoked.
type NetworkFetchStart struct {
	OperationName string
	OperationType string
}

// NetworkFetchFinish is published once the transport's result stream has
// delivered its message, or has closed without one, or Execute itself
// failed. It is not published when the fetch is abandoned because the
// operation's context was cancelled.
type NetworkFetchFinish struct {
	OperationName string
	OperationType string
	Duration      time.Duration
	Err           error
}
