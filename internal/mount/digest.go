package mount

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// treeDigest returns a digest over the layout and metadata of a directory
// tree: every relative path with its mode, size and modification time. File
// contents are not read, a changed file is detected by its metadata.
func (h *Handler) treeDigest(root string) (string, error) {
	hasher := blake3.New()

	var walk func(rel string) error

	walk = func(rel string) error {
		path := filepath.Join(root, rel)

		var st unix.Stat_t
		if err := h.unixHandler.Lstat(path, &st); err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		fmt.Fprintf(hasher, "%s\x00%o\x00%d\x00%d.%d\n", rel, st.Mode, st.Size, st.Mtim.Sec, st.Mtim.Nsec)

		if st.Mode&unix.S_IFMT != unix.S_IFDIR {
			return nil
		}

		items, err := h.osHandler.ReadDir(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		for _, item := range items {
			if err := walk(filepath.Join(rel, item.Name())); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk("."); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
