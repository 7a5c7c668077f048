package subscription

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResult = errors.New("subscription: no nodes could be parsed from the sources")
	ErrFetch       = errors.New("subscription: fetch failed")
)

// FetchError describes a source that could not be downloaded.
type FetchError struct {
	URL    string
	Status int
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("subscription: %s returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("subscription: fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Cause}
}

// EmptyResultError is returned when no source yielded a node. Skipped lists
// why each failing source was dropped.
type EmptyResultError struct {
	Sources int
	Skipped []SkippedSource
}

func (e *EmptyResultError) Error() string {
	if len(e.Skipped) == 0 {
		return fmt.Sprintf("subscription: no nodes in %d source(s)", e.Sources)
	}
	reasons := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		reasons = append(reasons, s.URL+": "+s.Reason)
	}
	return fmt.Sprintf("subscription: no nodes in %d source(s) (%s)", e.Sources, strings.Join(reasons, "; "))
}

func (e *EmptyResultError) Unwrap() error { return ErrEmptyResult }
