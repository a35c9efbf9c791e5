package inventory

import "errors"

var (
	// ErrEntryUnreadable occurs when the metadata of an element inside of a
	// module cannot be obtained, e.g. a symlink vanishing mid-race.
	ErrEntryUnreadable = errors.New("entry unreadable")

	// ErrScanIO occurs when the module root itself cannot be read.
	ErrScanIO = errors.New("module root unreadable")

	// ErrNoPropFile occurs when a directory has no readable metadata file.
	ErrNoPropFile = errors.New("no module metadata file")
)
