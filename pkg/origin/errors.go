package origin

import "errors"

var (
	// ErrNotFound means the object does not exist at the origin.
	ErrNotFound = errors.New("origin: object not found")
)
