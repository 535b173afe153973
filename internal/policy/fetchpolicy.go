package policy

import (
	cerr "github.com/cacheql/cacheql/internal/cerr"
)

// FetchPolicy selects a query's local-read/network-fetch sequence
// (§4.5.1).
type FetchPolicy string

const (
	// LocalOnly reads the cache once and never touches the network.
	LocalOnly FetchPolicy = "local-only"
	// LocalFirst reads the cache first and fetches only on a cache miss.
	LocalFirst FetchPolicy = "local-first"
	// LocalThenRemote reads the cache first but always fetches, whether
	// or not the local read was a hit.
	LocalThenRemote FetchPolicy = "local-then-remote"
	// RemoteOnly always fetches, emitting a null-data message first.
	RemoteOnly FetchPolicy = "remote-only"
)

// ParseFetchPolicy validates a caller-supplied policy string, defaulting
// an empty string to LocalOnly per §6's client-surface option table.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch FetchPolicy(s) {
	case "":
		return LocalOnly, nil
	case LocalOnly, LocalFirst, LocalThenRemote, RemoteOnly:
		return FetchPolicy(s), nil
	default:
		return "", cerr.Wrap(cerr.ErrInvalidFetchPolicy, s, nil)
	}
}
