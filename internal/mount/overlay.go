package mount

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/kernel"
	"golang.org/x/sys/unix"
)

// applyOverlay stages the module tree read-only below the mount point and
// layers each of its partitions above the live partition.
func (h *Handler) applyOverlay(r *Result) error {
	m := r.Module
	staged := filepath.Join(h.opts.MountPoint, m.ID)

	h.markReplaceDirs(r)

	if err := h.osHandler.MkdirAll(staged, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("(mount-overlay) %w: failed to create %s: %w", ErrMountFailure, staged, err)
	}

	if err := h.bind(m.Path, staged, true); err != nil {
		return fmt.Errorf("(mount-overlay) %w: failed to stage %s: %w", ErrMountFailure, m.Path, err)
	}
	h.batchHandler.Enqueue(staged)

	if err := h.unixHandler.Mount("", staged, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
		slog.Warn("Failed to remount staged module read-only (continuing)",
			"module", m.ID,
			"target", staged,
			"err", err,
		)
	}

	return h.overlayPartitions(r, staged)
}

// overlayPartitions mounts an overlay for every partition found below the
// layer root, with the module layer above the live partition.
func (h *Handler) overlayPartitions(r *Result, layerRoot string) error {
	var errs []error

	found := 0

	for _, part := range Partitions {
		if !h.isDir(filepath.Join(r.Module.Path, part)) {
			continue
		}
		found++

		target, ok := h.partitionTarget(part)
		if !ok {
			slog.Warn("Skipped partition: not present on this system",
				"module", r.Module.ID,
				"partition", part,
			)
			r.Skipped++

			continue
		}

		lower := filepath.Join(layerRoot, part)
		data := "lowerdir=" + strings.Join([]string{lower, target}, ":")

		if err := h.unixHandler.Mount(h.opts.MountSource, target, kernel.FSOverlay, unix.MS_RDONLY, data); err != nil {
			errs = append(errs, fmt.Errorf("(mount-overlay) %w: %s on %s: %w", ErrMountFailure, lower, target, err))
			r.Skipped++

			continue
		}

		h.batchHandler.Enqueue(target)
		r.Mounted++
	}

	if found == 0 {
		return fmt.Errorf("(mount-overlay) %w: no partition directories in %s", ErrUnsupported, r.Module.Path)
	}

	if r.Mounted == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, err := range errs {
		slog.Warn("Failed to mount partition overlay (skipped)",
			"module", r.Module.ID,
			"err", err,
		)
	}

	return nil
}

// markReplaceDirs marks every replace-directory of the module opaque, so the
// overlay hides the lower subtree. Failures are logged and skipped.
func (h *Handler) markReplaceDirs(r *Result) {
	var walk func(dir *inventory.Entry)

	walk = func(dir *inventory.Entry) {
		if dir.IsReplace {
			if err := h.xattrHandler.MarkOpaque(dir.Path); err != nil {
				slog.Warn("Failed to mark replace-directory opaque (skipped)",
					"module", r.Module.ID,
					"path", dir.Path,
					"err", err,
				)
			}
		}

		children, errs, err := h.classifier.Children(h.osHandler, r.Module.Path, dir)
		if err != nil {
			slog.Warn("Failed to read module directory (skipped)",
				"module", r.Module.ID,
				"err", err,
			)

			return
		}

		for _, err := range errs {
			slog.Warn("Failed to classify module entry (skipped)",
				"module", r.Module.ID,
				"err", err,
			)
		}

		for _, child := range children {
			if child.IsDir() {
				walk(child)
			}
		}
	}

	for _, part := range Partitions {
		entry, err := h.classifier.Classify(r.Module.Path, part)
		if err != nil || !entry.IsDir() {
			continue
		}
		walk(entry)
	}
}
