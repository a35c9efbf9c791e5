package inventory

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Entry is a classified filesystem element inside of a module. It is computed
// lazily while a module is being applied and never persisted.
type Entry struct {
	// RelPath is the path relative to the module directory.
	RelPath string

	// Path is the absolute path of the element.
	Path string

	// Mode is the file type (S_IFMT bits) of the element.
	Mode uint32

	// IsWhiteout describes if the element is a character device with device
	// number 0, marking the path as deleted in the merged view.
	IsWhiteout bool

	// IsReplace describes if the element is a directory containing the
	// [ReplaceDirFileName] marker, replacing rather than merging the subtree.
	IsReplace bool

	// IsReplaceFile describes if the element is the marker file itself.
	IsReplaceFile bool
}

// Name returns the base name of an [Entry].
func (e *Entry) Name() string {
	return filepath.Base(e.Path)
}

// IsDir describes if the [Entry] is a directory.
func (e *Entry) IsDir() bool {
	return e.Mode == unix.S_IFDIR
}

// IsRegular describes if the [Entry] is a regular file.
func (e *Entry) IsRegular() bool {
	return e.Mode == unix.S_IFREG
}

// IsSymlink describes if the [Entry] is a symbolic link.
func (e *Entry) IsSymlink() bool {
	return e.Mode == unix.S_IFLNK
}

// Classifier classifies filesystem elements without following symlinks.
type Classifier struct {
	unixHandler unixProvider
}

// NewClassifier returns a pointer to a new [Classifier].
func NewClassifier(unixHandler unixProvider) *Classifier {
	return &Classifier{
		unixHandler: unixHandler,
	}
}

// Classify reads the metadata of root/rel and classifies the element. An
// [ErrEntryUnreadable] is returned if the metadata cannot be obtained.
func (c *Classifier) Classify(root string, rel string) (*Entry, error) {
	path := filepath.Join(root, rel)

	var stat unix.Stat_t
	if err := c.unixHandler.Lstat(path, &stat); err != nil {
		return nil, fmt.Errorf("(inventory-classify) %w (%s): %w", ErrEntryUnreadable, path, err)
	}

	entry := &Entry{
		RelPath: rel,
		Path:    path,
		Mode:    uint32(stat.Mode) & unix.S_IFMT,
	}

	if entry.Mode == unix.S_IFCHR {
		entry.IsWhiteout = stat.Rdev == 0
	}

	if entry.IsDir() {
		var marker unix.Stat_t
		if err := c.unixHandler.Lstat(filepath.Join(path, ReplaceDirFileName), &marker); err == nil {
			entry.IsReplace = true
		}
	}

	entry.IsReplaceFile = filepath.Base(path) == ReplaceDirFileName

	return entry, nil
}

// Children classifies the direct children of a directory [Entry]. Elements
// that cannot be read are returned as errors alongside the readable ones, so
// that the caller can decide to isolate them.
func (c *Classifier) Children(osHandler osProvider, root string, dir *Entry) ([]*Entry, []error, error) {
	items, err := osHandler.ReadDir(dir.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("(inventory-children) %w (%s): %w", ErrEntryUnreadable, dir.Path, err)
	}

	entries := make([]*Entry, 0, len(items))

	var errs []error

	for _, item := range items {
		entry, err := c.Classify(root, filepath.Join(dir.RelPath, item.Name()))
		if err != nil {
			errs = append(errs, err)

			continue
		}
		entries = append(entries, entry)
	}

	return entries, errs, nil
}
