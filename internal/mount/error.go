package mount

import "errors"

var (
	// ErrMountFailure occurs when a mount operation of a module fails.
	ErrMountFailure = errors.New("mount failure")

	// ErrImageBuild occurs when the external tool fails to pack a module.
	ErrImageBuild = errors.New("image build failure")

	// ErrUnsupported occurs when a module cannot be applied by its backend,
	// e.g. because it contains nothing that maps onto a partition.
	ErrUnsupported = errors.New("unsupported by backend")
)
