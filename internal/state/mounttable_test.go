package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMountInfo = "22 1 254:0 / / ro,relatime shared:1 - ext4 /dev/root ro,seclabel\n" +
	"40 22 0:35 / /system ro,relatime - overlay KSU ro,lowerdir=/mnt/a/system:/system\n" +
	"41 22 8:1 / /mnt/with\\040space rw - vfat /dev/sda1 rw\n"

func writeMountInfo(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mountinfo")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// TestProcMountInfo tests reading the mount table from a file.
func TestProcMountInfo(t *testing.T) {
	t.Parallel()

	t.Run("Success_Entries", func(t *testing.T) {
		t.Parallel()

		entries, err := NewProcMountInfo(&schema.OS{}, writeMountInfo(t, testMountInfo)).Entries()
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, MountEntry{
			Source:  "/dev/root",
			Target:  "/",
			FSType:  "ext4",
			Options: []string{"ro", "relatime", "ro", "seclabel"},
		}, entries[0])
		assert.Equal(t, "overlay", entries[1].FSType)
		assert.Equal(t, "KSU", entries[1].Source)
		assert.Contains(t, entries[1].Options, "lowerdir=/mnt/a/system:/system")
		assert.Equal(t, "/mnt/with space", entries[2].Target)
	})

	t.Run("Success_NeverTruncated", func(t *testing.T) {
		t.Parallel()

		lower := "lowerdir=" + strings.Repeat("/mnt/a/layer:", 8000) + "/system"
		content := "40 22 0:35 / /system ro - overlay KSU ro," + lower + "\n" +
			"41 22 0:36 / /vendor ro - overlay KSU ro\n"

		// An oversized entry either parses or fails the read, it never cuts
		// the table short.
		entries, err := NewProcMountInfo(&schema.OS{}, writeMountInfo(t, content)).Entries()
		if err == nil {
			require.Len(t, entries, 2)
			assert.Equal(t, "/vendor", entries[1].Target)
		}
	})

	t.Run("Fail_Malformed", func(t *testing.T) {
		t.Parallel()

		_, err := NewProcMountInfo(&schema.OS{}, writeMountInfo(t, "short line\n")).Entries()
		require.Error(t, err)
	})

	t.Run("Fail_Missing", func(t *testing.T) {
		t.Parallel()

		_, err := NewProcMountInfo(&schema.OS{}, filepath.Join(t.TempDir(), "none")).Entries()
		require.Error(t, err)
	})
}

// TestReferences tests the matching of mount options against a path.
func TestReferences(t *testing.T) {
	t.Parallel()

	entry := MountEntry{Options: []string{"ro", "lowerdir=/mnt/a/system:/system", "upperdir=/data/up"}}

	assert.True(t, entry.References("/mnt"))
	assert.True(t, entry.References("/mnt/"))
	assert.True(t, entry.References("/mnt/a"))
	assert.True(t, entry.References("/data/up"))
	assert.False(t, entry.References("/mn"))
	assert.False(t, entry.References("/mnt/ab"))
	assert.False(t, entry.References(""))
}
