package mount

import (
	"log/slog"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/kernel"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
)

var fallbacks = map[schema.MountMode][]schema.MountMode{
	schema.ModeImage:   {schema.ModeImage, schema.ModeOverlay, schema.ModeMagic},
	schema.ModeOverlay: {schema.ModeOverlay, schema.ModeMagic},
	schema.ModeMagic:   {schema.ModeMagic},
}

// Select returns the backend a module is applied with. The resolved mode of
// the module is used if feasible on this system, otherwise the next feasible
// mode of its fallback chain. A module with no feasible mode is ignored.
func (h *Handler) Select(m *inventory.Module) schema.MountMode {
	for _, mode := range fallbacks[m.Mode] {
		if h.Feasible(mode) {
			if mode != m.Mode {
				slog.Warn("Requested mount mode not feasible (falling back)",
					"module", m.ID,
					"requested", m.Mode,
					"mode", mode,
				)
			}

			return mode
		}
	}

	return schema.ModeIgnore
}

// Feasible checks if the kernel and the environment support a mount mode.
func (h *Handler) Feasible(mode schema.MountMode) bool {
	switch mode {
	case schema.ModeImage:
		return h.kernelHandler.SupportsFilesystem(kernel.FSErofs) &&
			h.kernelHandler.SupportsFilesystem(kernel.FSOverlay) &&
			h.builderAvailable()
	case schema.ModeOverlay:
		return h.kernelHandler.SupportsFilesystem(kernel.FSOverlay)
	case schema.ModeMagic:
		return h.kernelHandler.SupportsFilesystem(kernel.FSTmpfs)
	case schema.ModeIgnore:
	}

	return false
}

func (h *Handler) builderAvailable() bool {
	if h.opts.MkfsPath == "" {
		return false
	}

	info, err := h.osHandler.Stat(h.opts.MkfsPath)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
