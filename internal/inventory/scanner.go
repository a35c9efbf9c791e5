package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"github.com/KingMikhail/meta-hybrid-mount/internal/validation"
)

// Module is a discovered module. It is created once per scan and not to be
// modified afterwards.
type Module struct {
	// ID is the validated module identifier (the directory name).
	ID string

	// Path is the absolute source directory of the module.
	Path string

	// Mode is the resolved mount mode of the module.
	Mode schema.MountMode

	// Explicit describes if the mode was requested by the module itself,
	// rather than inherited from the configured default.
	Explicit bool

	// Rules is the per-module mount policy.
	Rules schema.Rules
}

// PropFile returns the path of the module's metadata file.
func (m *Module) PropFile() string {
	return filepath.Join(m.Path, PropFileName)
}

type rulesFile struct {
	DefaultMode string            `json:"default_mode"`
	Paths       map[string]string `json:"paths"`
}

// Handler is the principal implementation for the inventory services.
type Handler struct {
	*Classifier
	osHandler   osProvider
	defaultMode schema.MountMode
}

// NewHandler returns a pointer to a new inventory [Handler]. The defaultMode
// is used for every module not requesting a mode of its own.
func NewHandler(osHandler osProvider, unixHandler unixProvider, defaultMode schema.MountMode) *Handler {
	return &Handler{
		Classifier:  NewClassifier(unixHandler),
		osHandler:   osHandler,
		defaultMode: defaultMode,
	}
}

// Scan walks the module root and returns a record for every module in it, in
// the order of directory enumeration. Callers requiring a deterministic order
// need to sort by identifier themselves. Only an unreadable module root is an
// error, unreadable or malformed modules are skipped with a warning.
func (h *Handler) Scan(root string) ([]*Module, error) {
	items, err := h.osHandler.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("(inventory-scan) %w (%s): %w", ErrScanIO, root, err)
	}

	modules := []*Module{}

	for _, item := range items {
		path := filepath.Join(root, item.Name())

		info, err := h.osHandler.Stat(path)
		if err != nil {
			slog.Warn("Skipped module: failed to stat directory",
				"path", path,
				"err", err,
			)

			continue
		}

		if !info.IsDir() {
			continue
		}

		module, err := h.establishModule(item.Name(), path)
		if err != nil {
			if errors.Is(err, ErrNoPropFile) {
				slog.Debug("Skipped directory: no module metadata",
					"path", path,
				)

				continue
			}

			slog.Warn("Skipped module: failed to establish",
				"path", path,
				"err", err,
			)

			continue
		}

		modules = append(modules, module)
	}

	return modules, nil
}

func (h *Handler) establishModule(id string, path string) (*Module, error) {
	info, err := h.osHandler.Stat(filepath.Join(path, PropFileName))
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("(inventory-module) %w: %s", ErrNoPropFile, path)
	}

	if err := validation.ModuleID(id); err != nil {
		return nil, fmt.Errorf("(inventory-module) %w", err)
	}

	module := &Module{
		ID:   id,
		Path: path,
		Rules: schema.Rules{
			DefaultMode: h.defaultMode,
			Paths:       map[string]string{},
		},
	}

	h.establishRules(module)

	if h.isDisabled(path) {
		module.Rules.DefaultMode = schema.ModeIgnore
	}
	module.Mode = module.Rules.DefaultMode

	return module, nil
}

// establishRules reads the optional per-module rules file. Any problem with
// the file is logged and results in the default rules.
func (h *Handler) establishRules(m *Module) {
	data, err := h.osHandler.ReadFile(filepath.Join(m.Path, RulesFileName))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read module rules (using defaults)",
				"module", m.ID,
				"err", err,
			)
		}

		return
	}

	var rules rulesFile
	if err := json.Unmarshal(data, &rules); err != nil {
		slog.Warn("Failed to parse module rules (using defaults)",
			"module", m.ID,
			"err", err,
		)

		return
	}

	if rules.DefaultMode != "" {
		if mode, ok := schema.ParseMountMode(rules.DefaultMode); ok {
			m.Rules.DefaultMode = mode
			m.Explicit = true
		} else {
			slog.Warn("Unknown mode in module rules (ignored)",
				"module", m.ID,
				"mode", rules.DefaultMode,
			)
		}
	}

	for p, mode := range rules.Paths {
		m.Rules.Paths[filepath.Clean(p)] = mode
	}
}

// isDisabled checks for any of the marker files that force a module to be
// ignored, regardless of the configured or requested mode.
func (h *Handler) isDisabled(path string) bool {
	for _, marker := range []string{DisableFileName, RemoveFileName, SkipMountFileName} {
		if _, err := h.osHandler.Stat(filepath.Join(path, marker)); err == nil {
			return true
		}
	}

	return false
}
