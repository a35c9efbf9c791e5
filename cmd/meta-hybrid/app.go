package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/KingMikhail/meta-hybrid-mount/internal/configuration"
	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/listing"
	"github.com/KingMikhail/meta-hybrid-mount/internal/mount"
	"github.com/KingMikhail/meta-hybrid-mount/internal/state"
	"github.com/KingMikhail/meta-hybrid-mount/internal/unmount"
)

// maxTeardownRounds limits the unmount passes for stacked mounts, where every
// pass only removes the topmost mount of a target.
const maxTeardownRounds = 8

type App struct {
	config       *configuration.AppConfiguration
	scanHandler  *inventory.Handler
	mountHandler *mount.Handler
	listHandler  *listing.Handler
	store        *state.Store
	table        state.MountTable
	batch        *unmount.Batch
}

func NewApp(config *configuration.AppConfiguration,
	scanHandler *inventory.Handler,
	mountHandler *mount.Handler,
	listHandler *listing.Handler,
	store *state.Store,
	table state.MountTable,
	batch *unmount.Batch,
) *App {
	return &App{
		config:       config,
		scanHandler:  scanHandler,
		mountHandler: mountHandler,
		listHandler:  listHandler,
		store:        store,
		table:        table,
		batch:        batch,
	}
}

// Mount applies all installed modules and records the outcome. The runtime
// state is persisted even for an interrupted run, as mounts may exist already.
func (app *App) Mount(ctx context.Context) error {
	modules, err := app.scanHandler.Scan(app.config.ModuleDir)
	if err != nil {
		return fmt.Errorf("(app-mount) %w", err)
	}

	selected := make([]*inventory.Module, 0, len(modules))
	for _, m := range modules {
		if m.ID == app.config.SelfID {
			continue
		}
		selected = append(selected, m)
	}

	slog.Info("Mounting modules...",
		"modules", len(selected),
		"backend", app.mountHandler.Backend(),
	)

	results, runErr := app.mountHandler.Apply(ctx, selected)
	summary := mount.Summarize(results)

	st := state.New(app.mountHandler.Backend(), app.config.MountPoint,
		summary.Overlay, summary.Magic, summary.Image, app.config.EnableNuke, app.table)
	st.UmountTargets = app.batch.Targets()

	if err := app.store.Save(st); err != nil {
		slog.Error("Failed to persist runtime state.",
			"path", app.store.Path(),
			"err", err,
		)
	}

	app.listHandler.UpdateDescription(app.config.SelfPropFile(), listing.Summary{
		Overlay:    len(summary.Overlay),
		Magic:      len(summary.Magic),
		Image:      len(summary.Image),
		Backend:    st.StorageMode,
		NukeActive: st.NukeActive,
	})

	slog.Info("Mounting complete.",
		"overlay", len(summary.Overlay),
		"magic", len(summary.Magic),
		"image", len(summary.Image),
		"ignored", len(summary.Ignored),
		"failed", len(summary.Failed),
	)

	if len(summary.Failed) > 0 {
		slog.Warn("Some modules failed to mount.",
			"modules", strings.Join(summary.Failed, ","),
		)
	}

	if runErr != nil {
		return fmt.Errorf("(app-mount) %w", runErr)
	}

	return nil
}

// List writes the module listing as a single JSON array.
func (app *App) List(w io.Writer) error {
	records, err := app.listHandler.List(app.config.ModuleDir)
	if err != nil {
		return fmt.Errorf("(app-list) %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("(app-list) failed to encode listing: %w", err)
	}

	return nil
}

// Teardown unmounts everything a previous mount run recorded. With nuke, or
// if the previous run had nuke enabled, every live mount referencing the mount
// point is unmounted as well. Stacked mounts on a target are released one
// per round, as long as the live mount table still shows the target. Targets
// that could not be released are kept in the runtime state for a later run.
func (app *App) Teardown(nuke bool) error {
	if !app.batch.Available() {
		slog.Warn("Platform is unavailable, skipping teardown.")

		return nil
	}

	previous := app.store.Load()
	nuke = nuke || previous.NukeActive

	pending := -1

	for round := 0; round < maxTeardownRounds; round++ {
		entries, ok := app.liveEntries()
		live := liveTargets(entries)

		if ok {
			count := app.pendingCount(entries, previous.UmountTargets, nuke)
			if count == 0 || count == pending {
				break
			}
			pending = count
		}

		for _, target := range previous.UmountTargets {
			if _, mounted := live[filepath.Clean(target)]; mounted || !ok {
				app.batch.Enqueue(target)
			}
		}

		if nuke {
			app.enqueueReferencing(entries)
		}

		if len(app.batch.Targets()) == 0 {
			break
		}

		app.batch.Commit()

		if !ok {
			break
		}
	}

	if app.batch.Cancelled() {
		slog.Warn("Teardown was canceled by the unmount safety interlock.")

		return nil
	}

	st := state.New(previous.StorageMode, app.config.MountPoint, nil, nil, nil, false, app.table)

	if remaining := app.remainingTargets(previous.UmountTargets); len(remaining) > 0 {
		slog.Warn("Some recorded targets are still mounted after teardown (kept).",
			"targets", strings.Join(remaining, ","),
		)

		st = state.New(previous.StorageMode, app.config.MountPoint, previous.OverlayModules,
			previous.MagicModules, previous.ImageModules, previous.NukeActive, app.table)
		st.UmountTargets = remaining
	}

	if err := app.store.Save(st); err != nil {
		return fmt.Errorf("(app-teardown) %w", err)
	}

	if len(st.ActiveMounts) > 0 {
		slog.Warn("Some mounts are still active after teardown.",
			"mounts", strings.Join(st.ActiveMounts, ","),
		)
	}

	return nil
}

// liveEntries returns the live mount table. The second return value is false
// if the mount table could not be read.
func (app *App) liveEntries() ([]state.MountEntry, bool) {
	entries, err := app.table.Entries()
	if err != nil {
		slog.Warn("Failed to read mount table.",
			"err", err,
		)

		return nil, false
	}

	return entries, true
}

// pendingCount returns the number of live mounts a teardown still has to
// release, counting stacked mounts on the same target individually.
func (app *App) pendingCount(entries []state.MountEntry, recorded []string, nuke bool) int {
	targets := make(map[string]struct{}, len(recorded))
	for _, target := range recorded {
		targets[filepath.Clean(target)] = struct{}{}
	}

	count := 0

	for _, entry := range entries {
		if _, ok := targets[filepath.Clean(entry.Target)]; ok {
			count++

			continue
		}

		if nuke && app.referencesMountPoint(entry) {
			count++
		}
	}

	return count
}

func (app *App) enqueueReferencing(entries []state.MountEntry) {
	for _, entry := range entries {
		if app.referencesMountPoint(entry) {
			app.batch.Enqueue(entry.Target)
		}
	}
}

func (app *App) referencesMountPoint(entry state.MountEntry) bool {
	mountPoint := strings.TrimRight(app.config.MountPoint, "/")

	return entry.References(mountPoint) || strings.HasPrefix(entry.Target, mountPoint+"/")
}

func liveTargets(entries []state.MountEntry) map[string]struct{} {
	live := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		live[filepath.Clean(entry.Target)] = struct{}{}
	}

	return live
}

// remainingTargets returns the recorded targets that are still mounted. With
// an unreadable mount table, all recorded targets are considered mounted.
func (app *App) remainingTargets(recorded []string) []string {
	if len(recorded) == 0 {
		return nil
	}

	entries, ok := app.liveEntries()
	if !ok {
		return append([]string(nil), recorded...)
	}

	live := liveTargets(entries)

	var remaining []string

	for _, target := range recorded {
		if _, mounted := live[filepath.Clean(target)]; mounted {
			remaining = append(remaining, target)
		}
	}

	return remaining
}

// Status writes the human-readable view of the persisted runtime state.
func (app *App) Status(w io.Writer) error {
	if _, err := fmt.Fprintln(w, renderStatus(app.store.Load())); err != nil {
		return fmt.Errorf("(app-status) %w", err)
	}

	return nil
}
