// Package kernel provides probes for features of the running kernel, namely
// the supported filesystem types and compile-time configuration options.
package kernel

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

const (
	// FilesystemsFile lists the filesystem types supported by the kernel.
	FilesystemsFile = "/proc/filesystems"

	// ConfigFile is the gzip-compressed configuration of the running kernel.
	ConfigFile = "/proc/config.gz"

	FSOverlay = "overlay"
	FSErofs   = "erofs"
	FSTmpfs   = "tmpfs"

	// ConfigTmpfsXattr is the option enabling extended attributes on tmpfs.
	ConfigTmpfsXattr = "CONFIG_TMPFS_XATTR"
)

type osProvider interface {
	ReadFile(name string) ([]byte, error)
	Open(name string) (*os.File, error)
}

// Prober is the principal implementation for the kernel feature probes. The
// probed files are read once and the results are cached.
type Prober struct {
	sync.Mutex
	osHandler   osProvider
	filesystems map[string]struct{}
	config      map[string]string
}

// NewProber returns a pointer to a new [Prober].
func NewProber(osHandler osProvider) *Prober {
	return &Prober{
		osHandler: osHandler,
	}
}

// SupportsFilesystem checks if a filesystem type is listed as supported by the
// running kernel. An unreadable list is treated as no support.
func (p *Prober) SupportsFilesystem(fstype string) bool {
	p.Lock()
	defer p.Unlock()

	if p.filesystems == nil {
		p.filesystems = make(map[string]struct{})

		data, err := p.osHandler.ReadFile(FilesystemsFile)
		if err == nil {
			for k := range parseFilesystems(data) {
				p.filesystems[k] = struct{}{}
			}
		}
	}

	_, ok := p.filesystems[fstype]

	return ok
}

// ConfigEnabled checks if a compile-time option is set to "y" in the running
// kernel's configuration. An error is returned if the configuration cannot be
// read, as an absent configuration does not allow any conclusion.
func (p *Prober) ConfigEnabled(option string) (bool, error) {
	p.Lock()
	defer p.Unlock()

	if p.config == nil {
		config, err := p.readConfig()
		if err != nil {
			return false, fmt.Errorf("(kernel-config) %w", err)
		}
		p.config = config
	}

	return p.config[option] == "y", nil
}

func (p *Prober) readConfig() (map[string]string, error) {
	f, err := p.osHandler.Open(ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %w", err)
	}
	defer f.Close()

	return parseConfig(f)
}

func parseFilesystems(data []byte) map[string]struct{} {
	out := make(map[string]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		// Lines are either "nodev\t<type>" or "\t<type>".
		out[fields[len(fields)-1]] = struct{}{}
	}

	return out
}

func parseConfig(r io.Reader) (map[string]string, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	defer zr.Close()

	config := make(map[string]string)

	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		config[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	return config, nil
}
