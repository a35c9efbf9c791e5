package mount

import (
	"log/slog"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
)

// Phase is the lifecycle position of a module within a mount run.
type Phase int

const (
	PhaseDiscovered Phase = iota
	PhaseIgnored
	PhaseApplying
	PhaseApplied
	PhaseFailed
)

var transitions = map[Phase][]Phase{
	PhaseDiscovered: {PhaseIgnored, PhaseApplying},
	PhaseApplying:   {PhaseApplied, PhaseFailed},
}

func (p Phase) String() string {
	switch p {
	case PhaseDiscovered:
		return "discovered"
	case PhaseIgnored:
		return "ignored"
	case PhaseApplying:
		return "applying"
	case PhaseApplied:
		return "applied"
	case PhaseFailed:
		return "failed"
	}

	return "unknown"
}

// Terminal describes if no further transition can follow the [Phase].
func (p Phase) Terminal() bool {
	return len(transitions[p]) == 0
}

// Result is the outcome of applying a single module.
type Result struct {
	// Module is the applied module.
	Module *inventory.Module

	// Mode is the backend that was used, after feasibility fallbacks.
	Mode schema.MountMode

	// Phase is the lifecycle position the module ended in.
	Phase Phase

	// Mounted is the amount of mounts created for the module.
	Mounted int

	// Skipped is the amount of entries that failed and were isolated.
	Skipped int

	// Err is the cause of a [PhaseFailed] module.
	Err error
}

func newResult(m *inventory.Module) *Result {
	return &Result{
		Module: m,
		Mode:   schema.ModeIgnore,
		Phase:  PhaseDiscovered,
	}
}

// enter moves the [Result] into the next [Phase], if the transition is legal.
func (r *Result) enter(next Phase) bool {
	for _, p := range transitions[r.Phase] {
		if p == next {
			r.Phase = next

			return true
		}
	}

	slog.Error("Illegal module phase transition (ignored)",
		"module", r.Module.ID,
		"from", r.Phase,
		"to", next,
	)

	return false
}

// Summary holds the identifiers of all applied modules, by backend.
type Summary struct {
	Overlay []string
	Magic   []string
	Image   []string
	Failed  []string
	Ignored []string
}

// Summarize groups the results of a mount run by their outcome.
func Summarize(results []*Result) Summary {
	var s Summary

	for _, r := range results {
		switch r.Phase {
		case PhaseApplied:
			switch r.Mode {
			case schema.ModeOverlay:
				s.Overlay = append(s.Overlay, r.Module.ID)
			case schema.ModeMagic:
				s.Magic = append(s.Magic, r.Module.ID)
			case schema.ModeImage:
				s.Image = append(s.Image, r.Module.ID)
			case schema.ModeIgnore:
			}
		case PhaseFailed:
			s.Failed = append(s.Failed, r.Module.ID)
		case PhaseIgnored:
			s.Ignored = append(s.Ignored, r.Module.ID)
		case PhaseDiscovered, PhaseApplying:
		}
	}

	return s
}
