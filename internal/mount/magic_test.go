package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestApplyModule_Magic tests the bind mount backend.
func TestApplyModule_Magic(t *testing.T) {
	t.Parallel()

	t.Run("Success_ReplaceExistingFile", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts")
		m := f.module(t, "mod_a", schema.ModeMagic, "system/etc/hosts")

		results := f.apply(t, m)

		target := filepath.Join(f.sysRoot, "system", "etc", "hosts")

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.Equal(t, []recordedMount{
			{filepath.Join(m.Path, "system", "etc", "hosts"), target, "", unix.MS_BIND, ""},
		}, f.unix.mounts)
		require.Equal(t, []string{target}, f.batch.targets)
		require.Empty(t, f.unix.unmounts, "work directory should not have been used")
	})

	t.Run("Success_NewFileMirrorsDirectory", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts")
		m := f.module(t, "mod_b", schema.ModeMagic, "system/etc/new.conf")

		results := f.apply(t, m)

		workDir := filepath.Join(f.opts.TempRoot, WorkDirName)
		mirror := filepath.Join(workDir, "mod_b", "system", "etc")
		target := filepath.Join(f.sysRoot, "system", "etc")

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.Equal(t, 3, results[0].Mounted)

		require.Equal(t, recordedMount{"KSU", workDir, "tmpfs", 0, "mode=0755"}, f.unix.mounts[0])
		require.ElementsMatch(t, []string{
			workDir,
			filepath.Join(mirror, "hosts"),
			filepath.Join(mirror, "new.conf"),
			target,
		}, f.unix.targets())

		last := f.unix.mounts[len(f.unix.mounts)-1]
		require.Equal(t, recordedMount{mirror, target, "", unix.MS_BIND | unix.MS_REC, ""}, last)

		require.FileExists(t, filepath.Join(mirror, "hosts"))
		require.FileExists(t, filepath.Join(mirror, "new.conf"))
		require.Equal(t, []string{target}, f.batch.targets)
		require.Equal(t, []string{workDir}, f.unix.unmounts)
		require.Contains(t, f.xattr.propagated, mirror)
	})

	t.Run("Success_NewDirectory", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/app/Old/Old.apk")
		m := f.module(t, "mod_c", schema.ModeMagic, "system/app/New/New.apk")

		results := f.apply(t, m)

		mirror := filepath.Join(f.opts.TempRoot, WorkDirName, "mod_c", "system", "app")

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.DirExists(t, filepath.Join(mirror, "Old"))
		require.FileExists(t, filepath.Join(mirror, "New", "New.apk"))
		require.Contains(t, f.unix.targets(), filepath.Join(mirror, "Old"))
		require.Contains(t, f.unix.targets(), filepath.Join(mirror, "New", "New.apk"))
		require.Equal(t, []string{filepath.Join(f.sysRoot, "system", "app")}, f.batch.targets)
	})

	t.Run("Success_Whiteout", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/gone", "system/etc/keep")
		m := f.module(t, "mod_d", schema.ModeMagic, "system/etc/gone")
		f.unix.whiteouts[filepath.Join(m.Path, "system", "etc", "gone")] = struct{}{}

		results := f.apply(t, m)

		mirror := filepath.Join(f.opts.TempRoot, WorkDirName, "mod_d", "system", "etc")

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.FileExists(t, filepath.Join(mirror, "keep"))
		require.NoFileExists(t, filepath.Join(mirror, "gone"))
		require.NotContains(t, f.unix.targets(), filepath.Join(mirror, "gone"))
	})

	t.Run("Success_WhiteoutOfAbsentEntry", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts")
		m := f.module(t, "mod_d", schema.ModeMagic, "system/etc/hosts", "system/etc/absent")
		f.unix.whiteouts[filepath.Join(m.Path, "system", "etc", "absent")] = struct{}{}

		results := f.apply(t, m)

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.Equal(t, []string{filepath.Join(f.sysRoot, "system", "etc", "hosts")}, f.unix.targets())
	})

	t.Run("Success_Symlink", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/bin/sh")
		m := f.module(t, "mod_e", schema.ModeMagic, "system/bin/")
		require.NoError(t, os.Symlink("sh", filepath.Join(m.Path, "system", "bin", "ash")))

		results := f.apply(t, m)

		mirror := filepath.Join(f.opts.TempRoot, WorkDirName, "mod_e", "system", "bin")

		require.Equal(t, PhaseApplied, results[0].Phase)

		dest, err := os.Readlink(filepath.Join(mirror, "ash"))
		require.NoError(t, err)
		require.Equal(t, "sh", dest)
	})

	t.Run("Success_ReplaceDirectory", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/other")
		m := f.module(t, "mod_f", schema.ModeMagic, "system/etc/.replace", "system/etc/hosts", "system/etc/gone")
		f.unix.whiteouts[filepath.Join(m.Path, "system", "etc", "gone")] = struct{}{}

		results := f.apply(t, m)

		mirror := filepath.Join(f.opts.TempRoot, WorkDirName, "mod_f", "system", "etc")
		target := filepath.Join(f.sysRoot, "system", "etc")

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.Empty(t, f.xattr.opaque)

		require.FileExists(t, filepath.Join(mirror, "hosts"))
		require.NoFileExists(t, filepath.Join(mirror, ".replace"))
		require.NoFileExists(t, filepath.Join(mirror, "gone"))
		require.NoFileExists(t, filepath.Join(mirror, "other"))
		require.NotContains(t, f.unix.targets(), filepath.Join(mirror, "other"))

		last := f.unix.mounts[len(f.unix.mounts)-1]
		require.Equal(t, recordedMount{mirror, target, "", unix.MS_BIND | unix.MS_REC, ""}, last)
		require.Equal(t, []string{target}, f.batch.targets)
		require.Equal(t, target, f.xattr.sources[mirror])
	})

	t.Run("Success_NestedReplaceDirectory", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts", "system/etc/init/old.rc")
		m := f.module(t, "mod_g", schema.ModeMagic, "system/etc/new.conf", "system/etc/init/.replace", "system/etc/init/new.rc")

		results := f.apply(t, m)

		mirror := filepath.Join(f.opts.TempRoot, WorkDirName, "mod_g", "system", "etc")

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.FileExists(t, filepath.Join(mirror, "hosts"))
		require.FileExists(t, filepath.Join(mirror, "init", "new.rc"))
		require.NoFileExists(t, filepath.Join(mirror, "init", ".replace"))
		require.NoFileExists(t, filepath.Join(mirror, "init", "old.rc"))
	})

	t.Run("Success_LabelAdoptedFromReplacedFile", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts")
		m := f.module(t, "mod_h", schema.ModeMagic, "system/etc/hosts")

		f.apply(t, m)

		src := filepath.Join(m.Path, "system", "etc", "hosts")
		target := filepath.Join(f.sysRoot, "system", "etc", "hosts")

		require.Equal(t, target, f.xattr.sources[src])
	})

	t.Run("Success_LabelAdoptedInsideMirror", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts")
		m := f.module(t, "mod_i", schema.ModeMagic, "system/etc/hosts", "system/etc/new.conf")

		f.apply(t, m)

		etc := filepath.Join(m.Path, "system", "etc")
		mirror := filepath.Join(f.opts.TempRoot, WorkDirName, "mod_i", "system", "etc")

		require.Equal(t, filepath.Join(f.sysRoot, "system", "etc", "hosts"), f.xattr.sources[filepath.Join(etc, "hosts")])
		require.NotContains(t, f.xattr.sources, filepath.Join(etc, "new.conf"), "new files keep their own label")
		require.NotContains(t, f.xattr.sources, filepath.Join(mirror, "hosts"), "placeholders are covered by the bind")
	})

	t.Run("Success_IgnoreRule", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts", "system/etc/fonts.xml")
		m := f.module(t, "mod_g", schema.ModeMagic, "system/etc/hosts", "system/etc/fonts.xml")
		m.Rules = schema.Rules{Paths: map[string]string{"system/etc/hosts": "ignore"}}

		results := f.apply(t, m)

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.Equal(t, []string{filepath.Join(f.sysRoot, "system", "etc", "fonts.xml")}, f.unix.targets())
	})

	t.Run("Success_PartialFailure", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/a", "system/etc/b")
		m := f.module(t, "mod_h", schema.ModeMagic, "system/etc/a", "system/etc/b")
		f.unix.fail[filepath.Join(f.sysRoot, "system", "etc", "b")] = unix.EPERM

		results := f.apply(t, m)

		require.Equal(t, PhaseApplied, results[0].Phase)
		require.Equal(t, 1, results[0].Mounted)
		require.Equal(t, 1, results[0].Skipped)
	})

	t.Run("Fail_AllEntries", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/a")
		m := f.module(t, "mod_i", schema.ModeMagic, "system/etc/a")
		f.unix.fail[filepath.Join(f.sysRoot, "system", "etc", "a")] = unix.EPERM

		results := f.apply(t, m)

		require.Equal(t, PhaseFailed, results[0].Phase)
		require.ErrorIs(t, results[0].Err, ErrMountFailure)
	})

	t.Run("Fail_WorkDirUnavailable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.system(t, "system/etc/hosts")
		m := f.module(t, "mod_j", schema.ModeMagic, "system/etc/new.conf")
		f.unix.fail[filepath.Join(f.opts.TempRoot, WorkDirName)] = unix.ENODEV

		results := f.apply(t, m)

		require.Equal(t, PhaseFailed, results[0].Phase)
		require.Empty(t, f.unix.unmounts)
	})
}
