package unmount

import "errors"

// ErrUnmountFailure occurs when a target cannot be unmounted. It is never
// returned to callers, only logged.
var ErrUnmountFailure = errors.New("failed to unmount")
