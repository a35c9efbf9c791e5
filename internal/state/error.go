package state

import "errors"

// ErrPersistence occurs when the runtime state cannot be saved.
var ErrPersistence = errors.New("failed to persist runtime state")
