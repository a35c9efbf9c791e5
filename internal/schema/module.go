package schema

import (
	"encoding/json"
	"strings"
)

// MountMode is the way a module is applied onto the root filesystem.
type MountMode int

const (
	// ModeOverlay applies a module through a kernel overlay union mount.
	ModeOverlay MountMode = iota

	// ModeImage packs a module into a read-only image before applying it.
	ModeImage

	// ModeMagic applies a module through per-file bind mounts.
	ModeMagic

	// ModeIgnore does not apply a module at all.
	ModeIgnore
)

// String returns the textual representation of a [MountMode], as it is used
// within the module listing and the rules files.
func (m MountMode) String() string {
	switch m {
	case ModeOverlay:
		return "auto"
	case ModeImage:
		return "hymofs"
	case ModeMagic:
		return "magic"
	case ModeIgnore:
		return "ignore"
	}

	return "unknown"
}

// ParseMountMode dereferences a textual mount mode into a [MountMode]. Some
// aliases are accepted, the second return value reports if the text was known.
func ParseMountMode(s string) (MountMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "overlay", "overlayfs":
		return ModeOverlay, true
	case "hymofs", "image", "erofs":
		return ModeImage, true
	case "magic", "magicmount":
		return ModeMagic, true
	case "ignore", "none", "disable":
		return ModeIgnore, true
	}

	return ModeOverlay, false
}

// MarshalJSON encodes a [MountMode] as its textual representation.
func (m MountMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a [MountMode] from its textual representation.
// Unknown modes decode to [ModeOverlay].
func (m *MountMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*m, _ = ParseMountMode(s)

	return nil
}

// Rules is the per-module mount policy. Paths is an open mapping of
// module-relative paths to textual modes, unknown modes are kept verbatim.
type Rules struct {
	DefaultMode MountMode         `json:"default_mode"`
	Paths       map[string]string `json:"paths"`
}

// PathMode returns the mode of the most specific path rule covering the given
// module-relative path. The second return value reports if any rule matched.
func (r *Rules) PathMode(rel string) (MountMode, bool) {
	best := ""
	found := false

	for p := range r.Paths {
		if (rel == p || strings.HasPrefix(rel, p+"/")) && len(p) >= len(best) {
			if _, ok := ParseMountMode(r.Paths[p]); ok {
				best = p
				found = true
			}
		}
	}

	if !found {
		return r.DefaultMode, false
	}

	mode, _ := ParseMountMode(r.Paths[best])

	return mode, true
}
