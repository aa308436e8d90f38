package crawler

import "context"

// NextState describes the listing's "next page" control.
type NextState int

// States of the "next page" control.
const (
	NextMissing NextState = iota
	NextDisabled
	NextEnabled
)

// String returns the state label used in logs.
func (s NextState) String() string {
	switch s {
	case NextDisabled:
		return "disabled"
	case NextEnabled:
		return "enabled"
	default:
		return "missing"
	}
}

// Navigator drives the browser session that renders the listing.
type Navigator interface {
	// Open loads the first listing page.
	Open(ctx context.Context, url string) error
	// HTML waits for the listing table and returns the rendered document and its URL.
	HTML(ctx context.Context) (html string, pageURL string, err error)
	// NextState inspects the "next page" control.
	NextState(ctx context.Context) (NextState, error)
	// Next activates the "next page" control.
	Next(ctx context.Context) error
	Close()
}
