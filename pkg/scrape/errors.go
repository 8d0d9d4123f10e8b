package scrape

import (
	"errors"
	"fmt"
)

// Adapter failures fall into exactly two classes. Callers branch with
// errors.Is; the HTTP layer maps both to retryable 5xx responses.
var (
	// ErrUnavailable marks network or timeout failures talking to a source.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrParseFailure marks a page whose structure no longer matches what the
	// adapter expects: no matching table, or zero rows where rows were
	// expected. A parse failure is never cached as an empty valid result.
	ErrParseFailure = errors.New("upstream parse failure")
)

func wrapParseFailure(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrParseFailure, action, err)
}
