// Package cerr defines the sentinel errors for every error kind named in
// the cache and policy engine specification (§7): mixed-entity-map,
// pull-not-ref, invalid-pull-form, invalid-fetch-policy, encode-error, and
// network-error. Callers match with errors.Is against these sentinels
// rather than string-comparing messages.
package cerr

import (
	"errors"
	"fmt"
)

var (
	// ErrMixedEntityMap: a sub-map being normalized has both entity and
	// non-entity values. Fatal to the write in progress; the prior store
	// snapshot is retained.
	ErrMixedEntityMap = errors.New("mixed-entity-map")

	// ErrPullNotRef: a pull pattern recurses into a field whose stored
	// value is neither an entity reference nor a collection of them.
	ErrPullNotRef = errors.New("pull-not-ref")

	// ErrInvalidPullForm: a pull pattern contains an unrecognized
	// expression.
	ErrInvalidPullForm = errors.New("invalid-pull-form")

	// ErrInvalidFetchPolicy: an unknown fetch-policy name was given to
	// Query.
	ErrInvalidFetchPolicy = errors.New("invalid-fetch-policy")

	// ErrEncode: a selection passed to the key encoder was malformed
	// (e.g. missing a field name).
	ErrEncode = errors.New("encode-error")

	// ErrNetwork: the transport surfaced an error executing an
	// operation. Delivered as a message with NetworkStatus Failed; not
	// retried.
	ErrNetwork = errors.New("network-error")
)

// Wrap annotates kind (one of the sentinels above, or any error) with a
// path/selection description and, when non-nil, the text of cause,
// preserving errors.Is against kind.
func Wrap(kind error, where string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, where)
	}
	return fmt.Errorf("%w: %s: %v", kind, where, cause)
}
