// Package unmount provides the unmount safety subsystem. Unmount targets are
// accumulated during a run, deduplicated by ancestry, and unmounted in a
// best-effort, escalating pass. A safety interlock can cancel the whole
// subsystem for the lifetime of the process, avoiding any unmount activity
// that could trip a root-hiding framework's detection logic.
package unmount

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	// InterlockTempRoot is the temporary filesystem root under which the
	// safety interlock engages, if the denylist is also enforced.
	InterlockTempRoot = "/debug_ramdisk"

	// FlagsRelaxed are the flags of the first unmount pass.
	FlagsRelaxed = 0

	// FlagsEscalated are the flags of the retry pass for failed targets.
	FlagsEscalated = unix.MNT_DETACH
)

type unixProvider interface {
	Unmount(target string, flags int) error
}

type platformProvider interface {
	Available() bool
	TempRoot() string
	DenylistEnforced() bool
}

// Batch is the process-wide collection of unmount targets. It is safe for
// concurrent use, all of its state is guarded by the embedded mutex.
type Batch struct {
	sync.Mutex
	unixHandler     unixProvider
	platformHandler platformProvider

	targets   []string
	prefixes  map[string]struct{}
	checked   bool
	cancelled bool
}

// NewBatch returns a pointer to a new, empty [Batch].
func NewBatch(unixHandler unixProvider, platformHandler platformProvider) *Batch {
	return &Batch{
		unixHandler:     unixHandler,
		platformHandler: platformHandler,
		prefixes:        make(map[string]struct{}),
	}
}

// Enqueue queues a target for unmounting. It is a no-op if the platform is
// unavailable, if the safety interlock has latched, or if an ancestor of the
// target is already queued. Queued descendants of the target are replaced by
// it, so the set of targets does not depend on the order of calls. A target
// queued again moves to the end of the queue, as it was mounted upon again.
func (b *Batch) Enqueue(path string) {
	b.Lock()
	defer b.Unlock()

	if !b.platformHandler.Available() {
		return
	}

	if !b.checked {
		b.checked = true
		b.evaluateInterlock()
	}

	if b.cancelled {
		return
	}

	path = filepath.Clean(path)

	if _, ok := b.prefixes[path]; ok {
		b.moveToEnd(path)

		return
	}

	for prefix := range b.prefixes {
		if isAncestorOrSelf(prefix, path) {
			slog.Debug("Unmount list already includes a parent of the target.",
				"target", path,
				"parent", prefix,
			)

			return
		}
	}

	kept := b.targets[:0]
	for _, target := range b.targets {
		if isAncestorOrSelf(path, target) {
			delete(b.prefixes, target)

			continue
		}
		kept = append(kept, target)
	}

	b.targets = append(kept, path)
	b.prefixes[path] = struct{}{}
}

// Commit unmounts all queued targets, first with relaxed flags and then, only
// for the targets that failed, once more with escalated flags. Targets are
// unmounted in reverse order of queueing, so a mount is released before the
// mounts it was built upon. Remaining failures are logged and never returned,
// the queue is drained afterwards.
func (b *Batch) Commit() {
	b.Lock()
	defer b.Unlock()

	if !b.platformHandler.Available() || b.cancelled {
		return
	}

	targets := make([]string, 0, len(b.targets))
	for i := len(b.targets) - 1; i >= 0; i-- {
		targets = append(targets, b.targets[i])
	}
	b.targets = nil
	b.prefixes = make(map[string]struct{})

	if len(targets) == 0 {
		return
	}

	failed, err := b.unmountAll(targets, FlagsRelaxed)
	if len(failed) == 0 {
		slog.Info("Unmounted all targets.",
			"count", len(targets),
		)

		return
	}

	slog.Debug("Unmount with relaxed flags failed, retrying with escalated flags.",
		"failed", len(failed),
		"err", err,
	)

	remaining, err := b.unmountAll(failed, FlagsEscalated)
	if len(remaining) > 0 {
		slog.Warn("Failed to unmount some targets (abandoned).",
			"failed", len(remaining),
			"targets", strings.Join(remaining, ","),
			"err", err,
		)

		return
	}

	slog.Info("Unmounted all targets.",
		"count", len(targets),
		"escalated", len(failed),
	)
}

// Targets returns a copy of the currently queued targets.
func (b *Batch) Targets() []string {
	b.Lock()
	defer b.Unlock()

	out := make([]string, len(b.targets))
	copy(out, b.targets)

	return out
}

// Available reports if the platform permits any unmount activity at all.
func (b *Batch) Available() bool {
	return b.platformHandler.Available()
}

// Cancelled reports if the safety interlock has latched.
func (b *Batch) Cancelled() bool {
	b.Lock()
	defer b.Unlock()

	return b.cancelled
}

// evaluateInterlock latches the cancellation if the root-hiding framework is
// enforcing its denylist while this process runs from [InterlockTempRoot].
func (b *Batch) evaluateInterlock() {
	if strings.TrimSpace(b.platformHandler.TempRoot()) != InterlockTempRoot {
		return
	}

	if !b.platformHandler.DenylistEnforced() {
		return
	}

	slog.Warn("Denylist enforcement detected with the temporary root at " + InterlockTempRoot +
		", canceling all unmounting to prevent conflicts.")

	b.cancelled = true
}

func (b *Batch) moveToEnd(path string) {
	for i, target := range b.targets {
		if target == path {
			b.targets = append(append(b.targets[:i:i], b.targets[i+1:]...), path)

			return
		}
	}
}

func (b *Batch) unmountAll(targets []string, flags int) ([]string, error) {
	var failed []string

	var errs []error

	for _, target := range targets {
		if err := b.unixHandler.Unmount(target, flags); err != nil {
			if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT) {
				slog.Debug("Target was not mounted (skipped).",
					"target", target,
				)

				continue
			}

			failed = append(failed, target)
			errs = append(errs, fmt.Errorf("(unmount) %w (%s, flags %d): %w", ErrUnmountFailure, target, flags, err))
		}
	}

	return failed, errors.Join(errs...)
}

func isAncestorOrSelf(ancestor string, path string) bool {
	if ancestor == path || ancestor == "/" {
		return true
	}

	return strings.HasPrefix(path, ancestor+"/")
}
