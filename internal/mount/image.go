package mount

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/KingMikhail/meta-hybrid-mount/internal/kernel"
	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// MkfsArgs are the arguments passed to the image building tool, followed by
// the destination image and the source directory.
var MkfsArgs = []string{"-zlz4hc"}

// applyImage packs the module tree into a read-only image, mounts it below
// the mount point and layers its partitions above the live partitions.
func (h *Handler) applyImage(r *Result) error {
	m := r.Module
	staged := filepath.Join(h.opts.MountPoint, m.ID)

	img, err := h.buildImage(r)
	if err != nil {
		return err
	}

	if err := h.osHandler.MkdirAll(staged, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("(mount-image) %w: failed to create %s: %w", ErrMountFailure, staged, err)
	}

	if err := h.unixHandler.Mount(img, staged, kernel.FSErofs, unix.MS_RDONLY, ""); err != nil {
		return fmt.Errorf("(mount-image) %w: failed to mount %s: %w", ErrMountFailure, img, err)
	}
	h.batchHandler.Enqueue(staged)

	return h.overlayPartitions(r, staged)
}

// buildImage returns the image of a module, invoking the external tool only
// if the module tree changed since the image was last built.
func (h *Handler) buildImage(r *Result) (string, error) {
	m := r.Module
	img := filepath.Join(h.opts.ImageDir, m.ID+ImageExt)
	digestFile := img + DigestExt

	digest, err := h.treeDigest(m.Path)
	if err != nil {
		slog.Warn("Failed to compute module digest (rebuilding image)",
			"module", m.ID,
			"err", err,
		)
	}

	if digest != "" && h.imageCurrent(img, digestFile, digest) {
		slog.Debug("Reusing unchanged module image",
			"module", m.ID,
			"image", img,
		)

		return img, nil
	}

	if err := h.osHandler.MkdirAll(h.opts.ImageDir, 0o755); err != nil { //nolint:mnd
		return "", fmt.Errorf("(mount-image) %w: failed to create %s: %w", ErrImageBuild, h.opts.ImageDir, err)
	}

	for _, stale := range []string{img, digestFile} {
		if err := h.osHandler.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("(mount-image) %w: failed to remove stale %s: %w", ErrImageBuild, stale, err)
		}
	}

	args := append(append([]string{}, MkfsArgs...), img, m.Path)
	if err := h.osHandler.Run(h.opts.MkfsPath, args...); err != nil {
		h.osHandler.Remove(img) //nolint:errcheck

		return "", fmt.Errorf("(mount-image) %w: %s %s: %w", ErrImageBuild, h.opts.MkfsPath, strings.Join(args, " "), err)
	}

	if info, err := h.osHandler.Stat(img); err == nil {
		slog.Info("Built module image",
			"module", m.ID,
			"image", img,
			"size", humanize.Bytes(uint64(info.Size())), //nolint:gosec
		)
	}

	if digest != "" {
		if err := h.osHandler.WriteFile(digestFile, []byte(digest+"\n"), 0o644); err != nil { //nolint:mnd
			slog.Warn("Failed to store module digest (continuing)",
				"module", m.ID,
				"err", err,
			)
		}
	}

	return img, nil
}

func (h *Handler) imageCurrent(img string, digestFile string, digest string) bool {
	if info, err := h.osHandler.Stat(img); err != nil || !info.Mode().IsRegular() {
		return false
	}

	stored, err := h.osHandler.ReadFile(digestFile)
	if err != nil {
		return false
	}

	return strings.TrimSpace(string(stored)) == digest
}
