package listing

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

const descriptionKey = "description="

// Summary is the status of a mount run as shown in the module description.
type Summary struct {
	Overlay    int
	Magic      int
	Image      int
	Backend    string
	NukeActive bool
}

func (s Summary) String() string {
	nuke := "Inactive"
	if s.NukeActive {
		nuke = "Active"
	}

	return fmt.Sprintf("Status: [Overlay: %d | Magic: %d | Image: %d] | Backend: %s | Nuke: %s",
		s.Overlay, s.Magic, s.Image, s.Backend, nuke)
}

// UpdateDescription rewrites the description line of a metadata file with the
// given [Summary], keeping all other lines as they are. A missing file is not
// an error, neither is a file that cannot be written: the description is only
// cosmetic and its update is dropped with a log message.
func (h *Handler) UpdateDescription(propPath string, s Summary) {
	data, err := h.osHandler.ReadFile(propPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Failed to read own metadata file (skipped)",
				"path", propPath,
				"err", err,
			)
		}

		return
	}

	content := rewriteDescription(string(data), s.String())

	f, err := h.osHandler.OpenFile(propPath, os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:mnd
	if err != nil {
		slog.Debug("Failed to open own metadata file for writing (skipped)",
			"path", propPath,
			"err", err,
		)

		return
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		slog.Warn("Failed to write own metadata file",
			"path", propPath,
			"err", err,
		)
	}
}

// rewriteDescription replaces the first description line of the content, or
// appends one if there is none. Line endings of all other lines are retained.
func rewriteDescription(content string, description string) string {
	lines := strings.SplitAfter(content, "\n")
	replaced := false

	for i, line := range lines {
		if strings.HasPrefix(line, descriptionKey) {
			ending := line[len(strings.TrimRight(line, "\r\n")):]
			lines[i] = descriptionKey + description + ending
			replaced = true

			break
		}
	}

	if !replaced {
		if content != "" && !strings.HasSuffix(content, "\n") {
			lines = append(lines, "\n")
		}
		lines = append(lines, descriptionKey+description+"\n")
	}

	return strings.Join(lines, "")
}
