package validation

import "errors"

// ErrInvalidIdentifier occurs when a module identifier does not match the
// identifier grammar. The operation for such a module is refused entirely.
var ErrInvalidIdentifier = errors.New("invalid module identifier")
