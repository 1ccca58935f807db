package backing

import "errors"

// Sentinel errors for the backing store. Callers match with errors.Is.
var (
	// ErrManagerClosed is returned for operations on a closed Manager.
	ErrManagerClosed = errors.New("backing: manager closed")

	// ErrStoreClosed is returned when a file's block store has been
	// torn down while an operation was using it.
	ErrStoreClosed = errors.New("backing: block store closed")

	// ErrTooManyFiles is returned by Open when the open-file table is
	// at capacity.
	ErrTooManyFiles = errors.New("backing: too many open backing files")

	// ErrFileBusy is returned by Remove for a file that still has open
	// handles.
	ErrFileBusy = errors.New("backing: backing file in use")

	// ErrNotLocked reports an IssueRead on a block whose lock the
	// caller does not hold.
	ErrNotLocked = errors.New("backing: block not locked by caller")
)
