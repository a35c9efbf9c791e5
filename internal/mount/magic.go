package mount

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/kernel"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"golang.org/x/sys/unix"
)

// applyMagic applies a module through bind mounts. Entries replacing existing
// files are bound over them directly. Directories gaining new entries, losing
// entries to whiteouts or containing symlinks cannot be modified in place and
// are rebuilt as a mirror inside the tmpfs work directory, which is then bound
// over the directory. A bind mount exposes the security label of its source,
// so module files replacing existing ones first adopt the replaced label.
// Failing entries are skipped and counted.
func (h *Handler) applyMagic(r *Result) error {
	found := 0

	for _, part := range Partitions {
		entry, err := h.classifier.Classify(r.Module.Path, part)
		if err != nil || !entry.IsDir() {
			continue
		}
		found++

		if h.ignored(r, entry) {
			continue
		}

		target, ok := h.partitionTarget(part)
		if !ok {
			slog.Warn("Skipped partition: not present on this system",
				"module", r.Module.ID,
				"partition", part,
			)
			r.Skipped++

			continue
		}

		h.magicDir(r, entry, target)
	}

	if found == 0 {
		return fmt.Errorf("(mount-magic) %w: no partition directories in %s", ErrUnsupported, r.Module.Path)
	}

	if r.Mounted == 0 && r.Skipped > 0 {
		return fmt.Errorf("(mount-magic) %w: none of %d entries could be mounted", ErrMountFailure, r.Skipped)
	}

	return nil
}

// magicDir applies a module directory onto an existing target directory.
func (h *Handler) magicDir(r *Result, dir *inventory.Entry, target string) {
	if dir.IsReplace {
		h.replaceDir(r, dir, target)

		return
	}

	children, ok := h.children(r, dir)
	if !ok {
		return
	}

	if h.needsMirror(r, children, target) {
		mirror, err := h.mirrorPath(r, dir)
		if err != nil {
			h.skip(r, dir, err)

			return
		}

		if !h.buildMirror(r, dir, children, target, mirror) {
			return
		}

		if err := h.bind(mirror, target, true); err != nil {
			h.skip(r, dir, err)

			return
		}
		h.batchHandler.Enqueue(target)
		r.Mounted++

		return
	}

	for _, child := range children {
		if child.IsReplaceFile || child.IsWhiteout || h.ignored(r, child) {
			continue
		}

		childTarget := filepath.Join(target, child.Name())

		if child.IsDir() {
			h.magicDir(r, child, childTarget)

			continue
		}

		h.adoptLabel(child.Path, childTarget)

		if err := h.bind(child.Path, childTarget, false); err != nil {
			h.skip(r, child, err)

			continue
		}
		h.batchHandler.Enqueue(childTarget)
		r.Mounted++
	}
}

// replaceDir hides the target directory entirely behind a mirror of the
// module directory. The mirror leaves out the replace marker and whiteouts,
// which would otherwise show up below the target.
func (h *Handler) replaceDir(r *Result, dir *inventory.Entry, target string) {
	children, ok := h.children(r, dir)
	if !ok {
		return
	}

	mirror, err := h.mirrorPath(r, dir)
	if err != nil {
		h.skip(r, dir, err)

		return
	}

	if !h.buildMirror(r, dir, children, target, mirror) {
		return
	}

	if err := h.bind(mirror, target, true); err != nil {
		h.skip(r, dir, err)

		return
	}
	h.batchHandler.Enqueue(target)
	r.Mounted++
}

// needsMirror checks if a target directory requires structural changes which
// cannot be expressed by binding over existing entries.
func (h *Handler) needsMirror(r *Result, children []*inventory.Entry, target string) bool {
	for _, child := range children {
		if child.IsReplaceFile || h.ignored(r, child) {
			continue
		}

		var st unix.Stat_t
		exists := h.unixHandler.Lstat(filepath.Join(target, child.Name()), &st) == nil
		kind := st.Mode & unix.S_IFMT

		switch {
		case child.IsWhiteout:
			if exists {
				return true
			}
		case child.IsSymlink():
			return true
		case !exists:
			return true
		case child.IsDir() && kind != unix.S_IFDIR:
			return true
		case !child.IsDir() && kind == unix.S_IFDIR:
			return true
		case kind == unix.S_IFLNK:
			return true
		}
	}

	return false
}

// buildMirror creates the merged view of a directory at the mirror path. The
// target may be absent, when a whole new directory is introduced. It reports
// if the mirror is usable.
func (h *Handler) buildMirror(r *Result, dir *inventory.Entry, children []*inventory.Entry,
	target string, mirror string,
) bool {
	if err := h.osHandler.MkdirAll(mirror, 0o755); err != nil { //nolint:mnd
		h.skip(r, dir, err)

		return false
	}

	targetExists := h.isDir(target)
	if targetExists {
		h.xattrHandler.Propagate(target, mirror)
	} else {
		h.xattrHandler.Propagate(dir.Path, mirror)
	}

	shadowed := make(map[string]struct{}, len(children))
	for _, child := range children {
		if child.IsReplaceFile || h.ignored(r, child) {
			continue
		}
		shadowed[child.Name()] = struct{}{}
	}

	if targetExists && !dir.IsReplace {
		h.mirrorExisting(r, target, mirror, shadowed)
	}

	for _, child := range children {
		if _, ok := shadowed[child.Name()]; !ok || child.IsWhiteout {
			continue
		}

		node := filepath.Join(mirror, child.Name())
		childTarget := filepath.Join(target, child.Name())

		switch {
		case child.IsSymlink():
			if err := h.copySymlink(child.Path, node); err != nil {
				h.skip(r, child, err)
			}

		case child.IsDir():
			grandchildren, ok := h.children(r, child)
			if !ok {
				continue
			}
			h.buildMirror(r, child, grandchildren, childTarget, node)

		default:
			h.adoptLabel(child.Path, childTarget)
			h.bindNode(r, child, child.Path, node, false)
		}
	}

	return true
}

// mirrorExisting carries the entries of the target directory not shadowed by
// the module into the mirror, binding each of them from its original location.
func (h *Handler) mirrorExisting(r *Result, target string, mirror string, shadowed map[string]struct{}) {
	items, err := h.osHandler.ReadDir(target)
	if err != nil {
		slog.Warn("Failed to read target directory (skipped)",
			"module", r.Module.ID,
			"path", target,
			"err", err,
		)
		r.Skipped++

		return
	}

	for _, item := range items {
		if _, ok := shadowed[item.Name()]; ok {
			continue
		}

		entry, err := h.classifier.Classify(target, item.Name())
		if err != nil {
			slog.Debug("Failed to classify target entry (skipped)",
				"path", filepath.Join(target, item.Name()),
				"err", err,
			)

			continue
		}

		node := filepath.Join(mirror, item.Name())

		if entry.IsSymlink() {
			if err := h.copySymlink(entry.Path, node); err != nil {
				h.skip(r, entry, err)
			}

			continue
		}

		h.bindNode(r, entry, entry.Path, node, entry.IsDir())
	}
}

// bindNode creates a mount point inside of a mirror and binds src onto it.
func (h *Handler) bindNode(r *Result, entry *inventory.Entry, src string, node string, dir bool) {
	var err error
	if dir {
		err = h.osHandler.MkdirAll(node, 0o755) //nolint:mnd
	} else {
		err = h.osHandler.WriteFile(node, nil, 0o644) //nolint:mnd
	}

	if err != nil {
		h.skip(r, entry, err)

		return
	}

	if err := h.bind(src, node, dir); err != nil {
		h.skip(r, entry, err)

		return
	}
	r.Mounted++
}

// adoptLabel copies the security label of an existing target onto the module
// file about to be bound over it. New files keep their own label.
func (h *Handler) adoptLabel(src string, target string) {
	var st unix.Stat_t
	if err := h.unixHandler.Lstat(target, &st); err != nil {
		return
	}

	h.xattrHandler.Propagate(target, src)
}

func (h *Handler) copySymlink(src string, dst string) error {
	dest, err := h.osHandler.Readlink(src)
	if err != nil {
		return err
	}

	if err := h.osHandler.Symlink(dest, dst); err != nil {
		return err
	}

	h.xattrHandler.Propagate(src, dst)

	return nil
}

func (h *Handler) children(r *Result, dir *inventory.Entry) ([]*inventory.Entry, bool) {
	children, errs, err := h.classifier.Children(h.osHandler, r.Module.Path, dir)
	if err != nil {
		h.skip(r, dir, err)

		return nil, false
	}

	for _, err := range errs {
		slog.Warn("Failed to classify module entry (skipped)",
			"module", r.Module.ID,
			"err", err,
		)
		r.Skipped++
	}

	return children, true
}

// mirrorPath returns the location of a mirror inside the work directory,
// mounting the work directory on first use.
func (h *Handler) mirrorPath(r *Result, dir *inventory.Entry) (string, error) {
	if err := h.ensureWorkDir(); err != nil {
		return "", err
	}

	return filepath.Join(h.workDir, r.Module.ID, dir.RelPath), nil
}

func (h *Handler) ensureWorkDir() error {
	if h.workDirUp {
		return nil
	}

	if h.workDirFail != nil {
		return h.workDirFail
	}

	if supported, err := h.kernelHandler.ConfigEnabled(kernel.ConfigTmpfsXattr); err == nil && !supported {
		slog.Warn("Kernel lacks tmpfs extended attributes, mirrors will not carry security labels")
	}

	if err := h.osHandler.MkdirAll(h.workDir, 0o755); err != nil { //nolint:mnd
		h.workDirFail = fmt.Errorf("(mount-workdir) %w: failed to create %s: %w", ErrMountFailure, h.workDir, err)

		return h.workDirFail
	}

	if err := h.unixHandler.Mount(h.opts.MountSource, h.workDir, kernel.FSTmpfs, 0, "mode=0755"); err != nil {
		h.workDirFail = fmt.Errorf("(mount-workdir) %w: failed to mount tmpfs on %s: %w", ErrMountFailure, h.workDir, err)

		return h.workDirFail
	}

	h.workDirUp = true

	return nil
}

// releaseWorkDir detaches the work directory. Mirrors bound elsewhere keep
// their tmpfs alive until they are unmounted themselves.
func (h *Handler) releaseWorkDir() {
	if !h.workDirUp {
		return
	}

	if err := h.unixHandler.Unmount(h.workDir, unix.MNT_DETACH); err != nil {
		slog.Warn("Failed to detach work directory",
			"path", h.workDir,
			"err", err,
		)
	}

	h.workDirUp = false
}

// ignored checks if a path rule of the module excludes the entry.
func (h *Handler) ignored(r *Result, entry *inventory.Entry) bool {
	mode, ok := r.Module.Rules.PathMode(entry.RelPath)

	return ok && mode == schema.ModeIgnore
}

func (h *Handler) skip(r *Result, entry *inventory.Entry, err error) {
	slog.Warn("Failed to mount module entry (skipped)",
		"module", r.Module.ID,
		"path", entry.RelPath,
		"err", err,
	)
	r.Skipped++
}
