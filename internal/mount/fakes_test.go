package mount

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recordedMount struct {
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
}

type fakeUnix struct {
	schema.Unix
	sync.Mutex
	mounts    []recordedMount
	unmounts  []string
	fail      map[string]error
	whiteouts map[string]struct{}
}

func newFakeUnix() *fakeUnix {
	return &fakeUnix{
		fail:      make(map[string]error),
		whiteouts: make(map[string]struct{}),
	}
}

func (f *fakeUnix) Lstat(path string, st *unix.Stat_t) error {
	if _, ok := f.whiteouts[path]; ok {
		*st = unix.Stat_t{Mode: unix.S_IFCHR}

		return nil
	}

	return f.Unix.Lstat(path, st)
}

func (f *fakeUnix) Mount(source string, target string, fstype string, flags uintptr, data string) error {
	f.Lock()
	defer f.Unlock()

	if err, ok := f.fail[target]; ok {
		return err
	}

	f.mounts = append(f.mounts, recordedMount{source, target, fstype, flags, data})

	return nil
}

func (f *fakeUnix) Unmount(target string, _ int) error {
	f.Lock()
	defer f.Unlock()

	f.unmounts = append(f.unmounts, target)

	return nil
}

func (f *fakeUnix) targets() []string {
	f.Lock()
	defer f.Unlock()

	out := make([]string, 0, len(f.mounts))
	for _, m := range f.mounts {
		out = append(out, m.Target)
	}

	return out
}

type fakeOS struct {
	schema.OS
	runs  int
	runFn func(name string, args ...string) error
}

func (f *fakeOS) Run(name string, args ...string) error {
	f.runs++
	if f.runFn == nil {
		return nil
	}

	return f.runFn(name, args...)
}

type fakeKernel struct {
	filesystems map[string]bool
}

func (f *fakeKernel) SupportsFilesystem(fstype string) bool {
	return f.filesystems[fstype]
}

func (f *fakeKernel) ConfigEnabled(string) (bool, error) {
	return true, nil
}

type fakeXattr struct {
	sync.Mutex
	opaque     []string
	propagated []string
	sources    map[string]string
}

func (f *fakeXattr) Propagate(src string, dst string) {
	f.Lock()
	defer f.Unlock()

	if f.sources == nil {
		f.sources = make(map[string]string)
	}

	f.propagated = append(f.propagated, dst)
	f.sources[dst] = src
}

func (f *fakeXattr) MarkOpaque(path string) error {
	f.Lock()
	defer f.Unlock()

	f.opaque = append(f.opaque, path)

	return nil
}

type fakeBatch struct {
	targets []string
}

func (f *fakeBatch) Enqueue(path string) {
	f.targets = append(f.targets, path)
}

type fixture struct {
	root    string
	sysRoot string
	modules string
	opts    Options
	os      *fakeOS
	unix    *fakeUnix
	xattr   *fakeXattr
	kernel  *fakeKernel
	batch   *fakeBatch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()

	f := &fixture{
		root:    root,
		sysRoot: filepath.Join(root, "sysroot"),
		modules: filepath.Join(root, "modules"),
		os:      &fakeOS{},
		unix:    newFakeUnix(),
		xattr:   &fakeXattr{},
		kernel: &fakeKernel{filesystems: map[string]bool{
			"overlay": true,
			"erofs":   true,
			"tmpfs":   true,
		}},
		batch: &fakeBatch{},
	}

	f.opts = Options{
		MountPoint:  filepath.Join(root, "mnt"),
		ImageDir:    filepath.Join(root, "img"),
		TempRoot:    filepath.Join(root, "tmp"),
		MountSource: "KSU",
		MkfsPath:    filepath.Join(root, "mkfs.erofs"),
		SystemRoot:  f.sysRoot,
	}

	require.NoError(t, os.MkdirAll(f.sysRoot, 0o755))
	require.NoError(t, os.MkdirAll(f.modules, 0o755))

	return f
}

func (f *fixture) handler() *Handler {
	return NewHandler(f.os, f.unix, f.xattr, f.kernel, f.batch, f.opts)
}

func (f *fixture) apply(t *testing.T, modules ...*inventory.Module) []*Result {
	t.Helper()

	results, err := f.handler().Apply(context.Background(), modules)
	require.NoError(t, err)
	require.Len(t, results, len(modules))

	return results
}

func (f *fixture) module(t *testing.T, id string, mode schema.MountMode, files ...string) *inventory.Module {
	t.Helper()

	path := filepath.Join(f.modules, id)
	require.NoError(t, os.MkdirAll(path, 0o755))

	for _, file := range files {
		writeEntry(t, path, file)
	}

	return &inventory.Module{ID: id, Path: path, Mode: mode}
}

func (f *fixture) system(t *testing.T, files ...string) {
	t.Helper()

	for _, file := range files {
		writeEntry(t, f.sysRoot, file)
	}
}

// writeEntry creates a file below base, or a directory if rel ends with "/".
func writeEntry(t *testing.T, base string, rel string) {
	t.Helper()

	path := filepath.Join(base, rel)

	if strings.HasSuffix(rel, "/") {
		require.NoError(t, os.MkdirAll(path, 0o755))

		return
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func (f *fixture) mkfs(t *testing.T) {
	t.Helper()

	require.NoError(t, os.WriteFile(f.opts.MkfsPath, []byte("#!/bin/sh\n"), 0o755)) //nolint:gosec
}
