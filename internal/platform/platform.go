// Package platform provides the process-wide context of the root-broker
// integration: whether the broker is present, which temporary filesystem root
// this process operates from, and whether a conflicting root-hiding framework
// is enforcing its denylist. Every value is determined once, on first access,
// and immutable thereafter.
package platform

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// DenylistEnforceFile holds the denylist enforcement status of the
	// root-hiding framework.
	DenylistEnforceFile = "/data/adb/zygisksu/denylist_enforce"

	// BrokerDaemonFile is the root-broker daemon binary.
	BrokerDaemonFile = "/data/adb/ksud"

	// BrokerEnv is set to "true" by the root-broker for module scripts.
	BrokerEnv = "KSU"
)

// TempRootCandidates are the directories that are tried, in order, as the
// temporary filesystem root. Only an empty directory qualifies.
//
//nolint:gochecknoglobals
var TempRootCandidates = []string{"/debug_ramdisk", "/patch_hw", "/oem", "/root", "/sbin"}

type osProvider interface {
	ReadDir(name string) ([]os.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
}

// Environment is the process-wide platform context. It is meant to be created
// once at startup and passed by reference to every component needing it.
type Environment struct {
	osHandler  osProvider
	getenv     func(string) string
	candidates []string
	configured string
	fallback   string

	availableOnce sync.Once
	available     bool

	tempRootOnce sync.Once
	tempRoot     string
}

// NewEnvironment returns a pointer to a new [Environment]. A non-empty
// configuredTempRoot takes precedence over the candidates, runDir is used to
// derive the fallback temporary root.
func NewEnvironment(osHandler osProvider, configuredTempRoot string, runDir string) *Environment {
	return &Environment{
		osHandler:  osHandler,
		getenv:     os.Getenv,
		candidates: TempRootCandidates,
		configured: configuredTempRoot,
		fallback:   filepath.Join(runDir, "workdir"),
	}
}

// Available reports if the root-broker integration is present.
func (e *Environment) Available() bool {
	e.availableOnce.Do(func() {
		if e.getenv(BrokerEnv) == "true" {
			e.available = true

			return
		}
		if _, err := e.osHandler.Stat(BrokerDaemonFile); err == nil {
			e.available = true
		}
	})

	return e.available
}

// TempRoot returns the temporary filesystem root of this process.
func (e *Environment) TempRoot() string {
	e.tempRootOnce.Do(func() {
		if e.configured != "" {
			e.tempRoot = e.configured

			return
		}

		for _, candidate := range e.candidates {
			if entries, err := e.osHandler.ReadDir(candidate); err == nil && len(entries) == 0 {
				e.tempRoot = candidate

				return
			}
		}

		e.tempRoot = e.fallback
	})

	return e.tempRoot
}

// DenylistEnforced reports if the root-hiding framework is enforcing its
// denylist. An unreadable status file means it is not.
func (e *Environment) DenylistEnforced() bool {
	data, err := e.osHandler.ReadFile(DenylistEnforceFile)
	if err != nil {
		return false
	}

	return strings.TrimSpace(string(data)) != "0"
}
