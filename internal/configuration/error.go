package configuration

import "errors"

// ErrInvalidMode occurs when a configured mount mode is not known.
var ErrInvalidMode = errors.New("invalid mount mode")
