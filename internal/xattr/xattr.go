// Package xattr provides the propagation of security labels and overlay
// filesystem extended attributes onto freshly created mount targets. Support
// for extended attributes varies by the underlying filesystem, so everything
// except the explicit opaque marking is best-effort and never fails.
package xattr

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	// SELinuxAttr is the extended attribute holding the security label.
	SELinuxAttr = "security.selinux"

	// OverlayOpaqueAttr is the extended attribute marking a directory opaque.
	OverlayOpaqueAttr = "trusted.overlay.opaque"

	// OverlayPrefix is the namespace of all overlay filesystem attributes.
	OverlayPrefix = "trusted.overlay."
)

type unixProvider interface {
	Lgetxattr(path string, attr string) ([]byte, error)
	Lsetxattr(path string, attr string, data []byte, flags int) error
	Llistxattr(path string) ([]string, error)
}

// Handler is the principal implementation for the extended attribute services.
type Handler struct {
	unixHandler unixProvider
}

// NewHandler returns a pointer to a new extended attribute [Handler].
func NewHandler(unixHandler unixProvider) *Handler {
	return &Handler{
		unixHandler: unixHandler,
	}
}

// Propagate copies the security label, the opaque attribute and any other
// overlay attribute from src to dst. Every failure is logged and swallowed.
func (h *Handler) Propagate(src string, dst string) {
	if label, err := h.Label(src); err == nil {
		h.SetLabel(dst, label)
	} else {
		slog.Debug("Failed to read security label (skipped)",
			"path", src,
			"err", err,
		)
	}

	// The opaque attribute is attempted on its own, even when listing fails.
	h.copyAttr(src, dst, OverlayOpaqueAttr)

	names, err := h.unixHandler.Llistxattr(src)
	if err != nil {
		slog.Debug("Failed to list extended attributes (skipped)",
			"path", src,
			"err", err,
		)

		return
	}

	for _, name := range names {
		if strings.HasPrefix(name, OverlayPrefix) && name != OverlayOpaqueAttr {
			h.copyAttr(src, dst, name)
		}
	}
}

// MarkOpaque sets the opaque attribute on a directory, hiding the lower layer
// subtree entirely in an overlay view.
func (h *Handler) MarkOpaque(path string) error {
	if err := h.unixHandler.Lsetxattr(path, OverlayOpaqueAttr, []byte("y"), 0); err != nil {
		return fmt.Errorf("(xattr-opaque) failed to set %s on %s: %w", OverlayOpaqueAttr, path, err)
	}

	return nil
}

// Label returns the security label of a path, without the trailing NUL.
func (h *Handler) Label(path string) (string, error) {
	data, err := h.unixHandler.Lgetxattr(path, SELinuxAttr)
	if err != nil {
		return "", fmt.Errorf("(xattr-label) failed to get label of %s: %w", path, err)
	}

	return strings.TrimRight(string(data), "\x00"), nil
}

// SetLabel sets the security label of a path. Failures are logged only.
func (h *Handler) SetLabel(path string, label string) {
	if err := h.unixHandler.Lsetxattr(path, SELinuxAttr, []byte(label), 0); err != nil {
		slog.Debug("Failed to set security label (skipped)",
			"path", path,
			"label", label,
			"err", err,
		)
	}
}

func (h *Handler) copyAttr(src string, dst string, name string) {
	value, err := h.unixHandler.Lgetxattr(src, name)
	if err != nil {
		return
	}

	if err := h.unixHandler.Lsetxattr(dst, name, value, 0); err != nil {
		slog.Debug("Failed to copy extended attribute (skipped)",
			"src", src,
			"dst", dst,
			"attr", name,
			"err", err,
		)
	}
}
