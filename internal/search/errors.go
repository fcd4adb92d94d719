package search

import "errors"

// Domain outcomes. They describe "no answer" rather than a system failure
// and are reported to callers as structured results.
var (
	ErrNotFound       = errors.New("start or goal node not in graph")
	ErrBannedEndpoint = errors.New("start or goal is in a banned country")
	ErrNoPathFound    = errors.New("no paths found with selected parameters")
	ErrSearchLimit    = errors.New("search expansion limit reached before any path was found")
	ErrInvalidQuery   = errors.New("invalid query")
)

// IsDomain reports whether err is one of the domain outcomes above.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBannedEndpoint) ||
		errors.Is(err, ErrNoPathFound) ||
		errors.Is(err, ErrSearchLimit)
}
