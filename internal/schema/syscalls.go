package schema

import (
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// OS is an implementation wrapping operating system functions.
type OS struct{}

// ReadDir wraps around [os.ReadDir].
func (*OS) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// ReadFile wraps around [os.ReadFile].
func (*OS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile wraps around [os.WriteFile].
func (*OS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Open wraps around [os.Open].
func (*OS) Open(name string) (*os.File, error) {
	return os.Open(name)
}

// OpenFile wraps around [os.OpenFile].
func (*OS) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

// Stat wraps around [os.Stat].
func (*OS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// MkdirAll wraps around [os.MkdirAll].
func (*OS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Readlink wraps around [os.Readlink].
func (*OS) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

// Symlink wraps around [os.Symlink].
func (*OS) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

// Remove wraps around [os.Remove].
func (*OS) Remove(name string) error {
	return os.Remove(name)
}

// Rename wraps around [os.Rename].
func (*OS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Run runs the named program with the given arguments and waits for it to
// exit. Only the exit status is of interest, any output is discarded.
func (*OS) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Unix is an implementation wrapping Unix operating system functions.
type Unix struct{}

// Lstat wraps around [unix.Lstat].
func (*Unix) Lstat(path string, stat *unix.Stat_t) error {
	return unix.Lstat(path, stat)
}

// Mkdir wraps around [unix.Mkdir].
func (*Unix) Mkdir(path string, mode uint32) error {
	return unix.Mkdir(path, mode)
}

// Mount wraps around [unix.Mount].
func (*Unix) Mount(source string, target string, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

// Unmount wraps around [unix.Unmount].
func (*Unix) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

// Lgetxattr reads an extended attribute without following symlinks. It sizes
// the buffer with a first probing call, as [unix.Lgetxattr] does not allocate.
func (*Unix) Lgetxattr(path string, attr string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, attr, nil)
	if err != nil {
		return nil, err
	}

	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)

	n, err := unix.Lgetxattr(path, attr, buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// Lsetxattr wraps around [unix.Lsetxattr].
func (*Unix) Lsetxattr(path string, attr string, data []byte, flags int) error {
	return unix.Lsetxattr(path, attr, data, flags)
}

// Llistxattr lists the extended attribute names of a path without following
// symlinks. The kernel returns a NUL-separated list which is split here.
func (*Unix) Llistxattr(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		return nil, err
	}

	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)

	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}

	var names []string

	start := 0
	for i := range n {
		if buf[i] == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}

	return names, nil
}
