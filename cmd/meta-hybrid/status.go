package main

import (
	"fmt"
	"strings"

	"github.com/KingMikhail/meta-hybrid-mount/internal/state"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

//nolint:gochecknoglobals
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Width(14) //nolint:mnd

	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func renderStatus(st *state.RuntimeState) string {
	updated := "never"
	if st.Timestamp > 0 {
		updated = humanize.Time(st.CreatedAt())
	}

	nuke := inactiveStyle.Render("Inactive")
	if st.NukeActive {
		nuke = activeStyle.Render("Active")
	}

	rows := []string{
		row("Updated", updated),
		row("PID", fmt.Sprint(st.PID)),
		row("Storage", orNone(st.StorageMode)),
		row("Mount point", orNone(st.MountPoint)),
		row("Overlay", moduleList(st.OverlayModules)),
		row("Magic", moduleList(st.MagicModules)),
		row("Image", moduleList(st.ImageModules)),
		row("Nuke", nuke),
		row("Active", moduleList(st.ActiveMounts)),
		row("Unmount", fmt.Sprintf("%d targets", len(st.UmountTargets))),
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("meta-hybrid"),
		borderStyle.Render(strings.Join(rows, "\n")),
	)
}

func row(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func moduleList(ids []string) string {
	if len(ids) == 0 {
		return inactiveStyle.Render("none")
	}

	return fmt.Sprintf("%d (%s)", len(ids), strings.Join(ids, ", "))
}

func orNone(s string) string {
	if s == "" {
		return inactiveStyle.Render("none")
	}

	return s
}
