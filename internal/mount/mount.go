// Package mount provides the mount-mode backends applying modules onto the
// root filesystem. A module is applied either through a kernel overlay union,
// through per-file bind mounts mirroring the merged tree ("magic mount"), or
// by packing it into a read-only image that is then layered as an overlay.
// Every module is applied independently, a failing module never blocks any
// other one.
package mount

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/kernel"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"golang.org/x/sys/unix"
)

// Partitions are the top-level module directories mapped onto the root
// filesystem, in the order they are applied.
var Partitions = []string{"system", "vendor", "product", "system_ext", "odm", "oem"}

const (
	// WorkDirName is the tmpfs work directory below the temporary root.
	WorkDirName = "workdir"

	// ImageExt is the extension of packed module images.
	ImageExt = ".img"

	// DigestExt is the extension of the digest files next to the images.
	DigestExt = ".b3"
)

type osProvider interface {
	ReadDir(name string) ([]os.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	Readlink(name string) (string, error)
	Symlink(oldname, newname string) error
	Remove(name string) error
	Run(name string, args ...string) error
}

type unixProvider interface {
	Lstat(path string, stat *unix.Stat_t) error
	Mount(source string, target string, fstype string, flags uintptr, data string) error
	Unmount(target string, flags int) error
}

type xattrProvider interface {
	Propagate(src string, dst string)
	MarkOpaque(path string) error
}

type kernelProvider interface {
	SupportsFilesystem(fstype string) bool
	ConfigEnabled(option string) (bool, error)
}

type batchProvider interface {
	Enqueue(path string)
}

// Options are the locations and parameters the backends operate with.
type Options struct {
	// MountPoint is where module trees and images are staged.
	MountPoint string

	// ImageDir is where packed module images are stored.
	ImageDir string

	// TempRoot is the temporary filesystem root holding the work directory.
	TempRoot string

	// MountSource is the device name shown for created mounts.
	MountSource string

	// MkfsPath is the external image building tool.
	MkfsPath string

	// SystemRoot is the root the partitions are resolved against.
	SystemRoot string
}

// Handler is the principal implementation for the mount services.
type Handler struct {
	osHandler     osProvider
	unixHandler   unixProvider
	xattrHandler  xattrProvider
	kernelHandler kernelProvider
	batchHandler  batchProvider
	classifier    *inventory.Classifier
	opts          Options

	workDir     string
	workDirUp   bool
	workDirFail error
}

// NewHandler returns a pointer to a new mount [Handler].
func NewHandler(osHandler osProvider, unixHandler unixProvider, xattrHandler xattrProvider,
	kernelHandler kernelProvider, batchHandler batchProvider, opts Options,
) *Handler {
	if opts.SystemRoot == "" {
		opts.SystemRoot = "/"
	}

	return &Handler{
		osHandler:     osHandler,
		unixHandler:   unixHandler,
		xattrHandler:  xattrHandler,
		kernelHandler: kernelHandler,
		batchHandler:  batchHandler,
		classifier:    inventory.NewClassifier(unixHandler),
		opts:          opts,
		workDir:       filepath.Join(opts.TempRoot, WorkDirName),
	}
}

// Apply applies all given modules in order and returns one [Result] per
// module. Modules are never retried, a failing module is recorded as such and
// the next one is attempted. A cancelled context stops the run between two
// modules, the results so far are returned together with the context error.
func (h *Handler) Apply(ctx context.Context, modules []*inventory.Module) ([]*Result, error) {
	defer h.releaseWorkDir()

	results := make([]*Result, 0, len(modules))

	for _, m := range modules {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("(mount-apply) interrupted before %s: %w", m.ID, err)
		}

		results = append(results, h.ApplyModule(m))
	}

	return results, nil
}

// Backend returns the name of the storage backend used for staged modules.
func (h *Handler) Backend() string {
	if h.Feasible(schema.ModeImage) {
		return kernel.FSErofs
	}

	return kernel.FSTmpfs
}

// ApplyModule selects the backend for a single module and applies it.
func (h *Handler) ApplyModule(m *inventory.Module) *Result {
	r := newResult(m)

	mode := h.Select(m)
	if mode == schema.ModeIgnore {
		r.enter(PhaseIgnored)
		slog.Info("Ignored module",
			"module", m.ID,
			"requested", m.Mode,
		)

		return r
	}

	r.Mode = mode
	r.enter(PhaseApplying)

	var err error

	switch mode {
	case schema.ModeImage:
		err = h.applyImage(r)
	case schema.ModeOverlay:
		err = h.applyOverlay(r)
	case schema.ModeMagic:
		err = h.applyMagic(r)
	case schema.ModeIgnore:
	}

	if err != nil {
		r.Err = err
		r.enter(PhaseFailed)
		slog.Error("Failed to apply module",
			"module", m.ID,
			"mode", mode,
			"err", err,
		)

		return r
	}

	r.enter(PhaseApplied)
	slog.Info("Applied module",
		"module", m.ID,
		"mode", mode,
		"mounts", r.Mounted,
		"skipped", r.Skipped,
	)

	return r
}

func (h *Handler) bind(src string, dst string, recursive bool) error {
	flags := uintptr(unix.MS_BIND)
	if recursive {
		flags |= unix.MS_REC
	}

	return h.unixHandler.Mount(src, dst, "", flags, "")
}

func (h *Handler) isDir(path string) bool {
	var st unix.Stat_t
	if err := h.unixHandler.Lstat(path, &st); err != nil {
		return false
	}

	return st.Mode&unix.S_IFMT == unix.S_IFDIR
}

// partitionTarget returns the live location of a partition, following a
// symlinked partition (e.g. /vendor -> /system/vendor) to its directory.
func (h *Handler) partitionTarget(part string) (string, bool) {
	target := filepath.Join(h.opts.SystemRoot, part)

	info, err := h.osHandler.Stat(target)
	if err != nil || !info.IsDir() {
		return "", false
	}

	return target, true
}
