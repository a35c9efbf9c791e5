// Package listing provides the presentation of installed modules, merging the
// module inventory with the persisted runtime state, and the status shown in
// the description of this manager's own module.
package listing

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"github.com/KingMikhail/meta-hybrid-mount/internal/state"
)

type osProvider interface {
	ReadFile(name string) ([]byte, error)
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
}

type scanProvider interface {
	Scan(root string) ([]*inventory.Module, error)
}

type stateProvider interface {
	Load() *state.RuntimeState
}

type propProvider interface {
	ReadLenient(content string) map[string]string
}

// Record is the presentation of a single module.
type Record struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	Author      string           `json:"author"`
	Description string           `json:"description"`
	Mode        schema.MountMode `json:"mode"`
	IsMounted   bool             `json:"is_mounted"`
	Rules       schema.Rules     `json:"rules"`
}

// Handler is the principal implementation for the listing services.
type Handler struct {
	osHandler    osProvider
	scanHandler  scanProvider
	stateHandler stateProvider
	propHandler  propProvider
}

// NewHandler returns a pointer to a new listing [Handler].
func NewHandler(osHandler osProvider, scanHandler scanProvider, stateHandler stateProvider,
	propHandler propProvider,
) *Handler {
	return &Handler{
		osHandler:    osHandler,
		scanHandler:  scanHandler,
		stateHandler: stateHandler,
		propHandler:  propHandler,
	}
}

// List returns a [Record] for every module below the module root, sorted by
// identifier. A module is reported as mounted if the persisted runtime state
// lists it under any of the mount modes.
func (h *Handler) List(root string) ([]Record, error) {
	modules, err := h.scanHandler.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("(listing-list) failed to scan modules: %w", err)
	}

	mounted := h.stateHandler.Load().MountedIDs()

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].ID < modules[j].ID
	})

	records := make([]Record, 0, len(modules))

	for _, m := range modules {
		props := h.readProps(m.PropFile())
		_, isMounted := mounted[m.ID]

		records = append(records, Record{
			ID:          m.ID,
			Name:        props["name"],
			Version:     props["version"],
			Author:      props["author"],
			Description: props["description"],
			Mode:        m.Mode,
			IsMounted:   isMounted,
			Rules:       m.Rules,
		})
	}

	return records, nil
}

func (h *Handler) readProps(path string) map[string]string {
	data, err := h.osHandler.ReadFile(path)
	if err != nil {
		slog.Debug("Failed to read module metadata (using empty fields)",
			"path", path,
			"err", err,
		)

		return map[string]string{}
	}

	return h.propHandler.ReadLenient(string(data))
}
