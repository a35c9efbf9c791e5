// Package inventory provides the discovery of installed modules and the
// classification of the filesystem entries inside of them. Every direct
// subdirectory of the module root carrying a metadata file is a module, its
// entries are classified as whiteouts, replace-directories or plain entries
// following the overlay filesystem conventions.
package inventory

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	// PropFileName is the metadata file that makes a directory a module.
	PropFileName = "module.prop"

	// RulesFileName is the optional per-module mount rules file.
	RulesFileName = "hybrid_rules.json"

	// ReplaceDirFileName is the marker file turning a directory into a
	// replace-directory.
	ReplaceDirFileName = ".replace"

	// DisableFileName marks a module as disabled.
	DisableFileName = "disable"

	// RemoveFileName marks a module as scheduled for removal.
	RemoveFileName = "remove"

	// SkipMountFileName marks a module as not to be mounted.
	SkipMountFileName = "skip_mount"
)

type osProvider interface {
	ReadDir(name string) ([]os.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
}

type unixProvider interface {
	Lstat(path string, stat *unix.Stat_t) error
}
