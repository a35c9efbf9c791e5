package state

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// MountInfoFile is the live mount table of the running process.
const MountInfoFile = "/proc/self/mountinfo"

// MountEntry is a single entry of the live mount table. Options hold both the
// per-mount and the filesystem-specific options, in that order.
type MountEntry struct {
	Source  string
	Target  string
	FSType  string
	Options []string
}

// References checks if any of the mount options references the given path or
// a path below it.
func (m MountEntry) References(root string) bool {
	root = strings.TrimRight(root, "/")
	if root == "" {
		return false
	}

	for _, opt := range m.Options {
		_, value, _ := strings.Cut(opt, "=")
		for _, part := range strings.Split(value, ":") {
			if part == root || strings.HasPrefix(part, root+"/") {
				return true
			}
		}
	}

	return false
}

// MountTable describes a source of the live mount table.
type MountTable interface {
	Entries() ([]MountEntry, error)
}

// ProcMountInfo is a [MountTable] reading the mount table from the proc
// filesystem, in the order the mounts were created.
type ProcMountInfo struct {
	osHandler osProvider
	path      string
}

// NewProcMountInfo returns a pointer to a new [ProcMountInfo] reading the
// given path, normally [MountInfoFile].
func NewProcMountInfo(osHandler osProvider, path string) *ProcMountInfo {
	return &ProcMountInfo{
		osHandler: osHandler,
		path:      path,
	}
}

// Entries reads and parses the mount table.
func (p *ProcMountInfo) Entries() ([]MountEntry, error) {
	data, err := p.osHandler.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("(state-mounts) failed to read %s: %w", p.path, err)
	}

	infos, err := mountinfo.GetMountsFromReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("(state-mounts) failed to parse %s: %w", p.path, err)
	}

	entries := make([]MountEntry, 0, len(infos))

	for _, info := range infos {
		entries = append(entries, MountEntry{
			Source:  info.Source,
			Target:  info.Mountpoint,
			FSType:  info.FSType,
			Options: splitOptions(info.Options, info.VFSOptions),
		})
	}

	return entries, nil
}

func splitOptions(lists ...string) []string {
	var opts []string

	for _, list := range lists {
		if list == "" {
			continue
		}
		opts = append(opts, strings.Split(list, ",")...)
	}

	return opts
}
