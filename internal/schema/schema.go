// Package schema provides the principal schematics for all other packages. It
// defines the module mount modes and rule sets shared between the inventory,
// the mount backends and the presentation layer, and provides implementations
// for handling (Unix-based) operating system syscalls. The package serves as a
// foundational layer for filesystem and mount interactions throughout the
// codebase.
package schema
