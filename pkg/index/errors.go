package index

import "errors"

var (
	// ErrNotFound means no entry exists for the requested key.
	ErrNotFound = errors.New("index: entry not found")

	// ErrClosed is returned for operations after Close.
	ErrClosed = errors.New("index: closed")
)
