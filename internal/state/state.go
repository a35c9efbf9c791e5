// Package state provides the runtime state that is persisted between process
// invocations: which modules are active under which mount mode, and which
// mounts were created. The live mount table remains the ground truth, so the
// active mounts are always reconciled against it rather than trusted from a
// previously persisted state.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type osProvider interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Rename(oldpath, newpath string) error
}

// RuntimeState is the process-wide record of a mount orchestration run.
type RuntimeState struct {
	Timestamp      int64    `json:"timestamp"`
	PID            int      `json:"pid"`
	StorageMode    string   `json:"storage_mode"`
	MountPoint     string   `json:"mount_point"`
	OverlayModules []string `json:"overlay_modules"`
	MagicModules   []string `json:"magic_modules"`
	ImageModules   []string `json:"image_modules"`
	NukeActive     bool     `json:"nuke_active"`
	ActiveMounts   []string `json:"active_mounts"`
	UmountTargets  []string `json:"umount_targets,omitempty"`
}

// New returns a pointer to a new [RuntimeState], stamped with the current
// process and time. The active mounts are detected from the live mount table
// rather than derived from the given module lists, as a previous process may
// have left mounts active without updating the persisted state.
func New(storageMode string, mountPoint string, overlayIDs []string, magicIDs []string,
	imageIDs []string, nukeActive bool, table MountTable,
) *RuntimeState {
	return &RuntimeState{
		Timestamp:      time.Now().Unix(),
		PID:            os.Getpid(),
		StorageMode:    storageMode,
		MountPoint:     mountPoint,
		OverlayModules: nonNil(overlayIDs),
		MagicModules:   nonNil(magicIDs),
		ImageModules:   nonNil(imageIDs),
		NukeActive:     nukeActive,
		ActiveMounts:   DetectActiveMounts(table, mountPoint),
	}
}

// MountedIDs returns the union of all module identifiers active under any
// mount mode.
func (s *RuntimeState) MountedIDs() map[string]struct{} {
	ids := make(map[string]struct{})

	for _, list := range [][]string{s.OverlayModules, s.MagicModules, s.ImageModules} {
		for _, id := range list {
			ids[id] = struct{}{}
		}
	}

	return ids
}

// CreatedAt returns the time the [RuntimeState] was constructed at.
func (s *RuntimeState) CreatedAt() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// DetectActiveMounts scans the live mount table for overlay mounts whose
// options reference the mount point and returns the base names of their
// targets, without duplicates. An unreadable mount table yields no mounts.
func DetectActiveMounts(table MountTable, mountPoint string) []string {
	actives := []string{}

	if table == nil {
		return actives
	}

	entries, err := table.Entries()
	if err != nil {
		slog.Warn("Failed to read mount table (no active mounts detected)",
			"err", err,
		)

		return actives
	}

	seen := make(map[string]struct{})

	for _, entry := range entries {
		if entry.FSType != "overlay" || !entry.References(mountPoint) {
			continue
		}

		name := filepath.Base(entry.Target)
		if name == "/" || name == "." {
			name = "unknown"
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		actives = append(actives, name)
	}

	return actives
}

// Store persists a [RuntimeState] at a fixed path.
type Store struct {
	osHandler osProvider
	path      string
}

// NewStore returns a pointer to a new [Store] for the given path.
func NewStore(osHandler osProvider, path string) *Store {
	return &Store{
		osHandler: osHandler,
		path:      path,
	}
}

// Path returns the location of the persisted state.
func (s *Store) Path() string {
	return s.path
}

// Save writes the [RuntimeState] to the store, replacing any previous state
// atomically.
func (s *Store) Save(st *RuntimeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("(state-save) %w: %w", ErrPersistence, err)
	}

	if err := s.osHandler.MkdirAll(filepath.Dir(s.path), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("(state-save) %w: %w", ErrPersistence, err)
	}

	tmpPath := s.path + ".tmp"

	if err := s.osHandler.WriteFile(tmpPath, data, 0o644); err != nil { //nolint:mnd
		return fmt.Errorf("(state-save) %w: %w", ErrPersistence, err)
	}

	if err := s.osHandler.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("(state-save) %w: %w", ErrPersistence, err)
	}

	return nil
}

// Load reads the [RuntimeState] from the store. A missing or corrupt state is
// a valid cold-start condition and results in an empty default state.
func (s *Store) Load() *RuntimeState {
	data, err := s.osHandler.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read runtime state (using defaults)",
				"path", s.path,
				"err", err,
			)
		}

		return Default()
	}

	st := Default()
	if err := json.Unmarshal(data, st); err != nil {
		slog.Warn("Failed to parse runtime state (using defaults)",
			"path", s.path,
			"err", err,
		)

		return Default()
	}

	st.OverlayModules = nonNil(st.OverlayModules)
	st.MagicModules = nonNil(st.MagicModules)
	st.ImageModules = nonNil(st.ImageModules)
	st.ActiveMounts = nonNil(st.ActiveMounts)

	return st
}

// Default returns a pointer to an empty [RuntimeState].
func Default() *RuntimeState {
	return &RuntimeState{
		OverlayModules: []string{},
		MagicModules:   []string{},
		ImageModules:   []string{},
		ActiveMounts:   []string{},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
