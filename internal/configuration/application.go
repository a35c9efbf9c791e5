package configuration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
)

// AppConfiguration is the principal structure holding the application
// configuration.
type AppConfiguration struct {
	ModuleDir   string
	MountPoint  string
	ImageDir    string
	TempDir     string
	MountSource string
	DefaultMode schema.MountMode
	MkfsPath    string
	EnableNuke  bool
	StateFile   string
	LogFile     string
	Verbose     bool
	SelfID      string
}

// NewAppConfiguration returns a pointer to a new [AppConfiguration] holding
// the default settings.
func NewAppConfiguration() *AppConfiguration {
	return &AppConfiguration{
		ModuleDir:   DefaultModuleDir,
		MountPoint:  DefaultMountPoint,
		ImageDir:    DefaultImageDir,
		MountSource: DefaultMountSource,
		DefaultMode: schema.ModeOverlay,
		MkfsPath:    DefaultMkfsPath,
		StateFile:   DefaultStateFile,
		LogFile:     DefaultLogFile,
		SelfID:      DefaultSelfID,
	}
}

// SelfPropFile returns the metadata file of this manager's own module.
func (a *AppConfiguration) SelfPropFile() string {
	return filepath.Join(a.ModuleDir, a.SelfID, "module.prop")
}

// LoadAppConfiguration reads the application settings from a file, falling
// back to the defaults for any setting that is not present. A missing file is
// not an error and results in the default configuration.
func (c *Handler) LoadAppConfiguration(path string) (*AppConfiguration, error) {
	config := NewAppConfiguration()

	envMap, err := c.ReadGeneric(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No configuration file found, using defaults.",
				"path", path,
			)

			return config, nil
		}

		return nil, fmt.Errorf("(config-app) failed to read config (%s): %w", path, err)
	}

	config.ModuleDir = c.MapKeyToStringDefault(envMap, SettingModuleDir, config.ModuleDir)
	config.MountPoint = c.MapKeyToStringDefault(envMap, SettingMountPoint, config.MountPoint)
	config.ImageDir = c.MapKeyToStringDefault(envMap, SettingImageDir, config.ImageDir)
	config.TempDir = c.MapKeyToString(envMap, SettingTempDir)
	config.MountSource = c.MapKeyToStringDefault(envMap, SettingMountSource, config.MountSource)
	config.MkfsPath = c.MapKeyToStringDefault(envMap, SettingMkfsPath, config.MkfsPath)
	config.EnableNuke = c.MapKeyToBool(envMap, SettingEnableNuke)
	config.StateFile = c.MapKeyToStringDefault(envMap, SettingStateFile, config.StateFile)
	config.LogFile = c.MapKeyToStringDefault(envMap, SettingLogFile, config.LogFile)
	config.Verbose = c.MapKeyToBool(envMap, SettingVerbose)
	config.SelfID = c.MapKeyToStringDefault(envMap, SettingSelfID, config.SelfID)

	if modeStr := c.MapKeyToString(envMap, SettingDefaultMode); modeStr != "" {
		mode, ok := schema.ParseMountMode(modeStr)
		if !ok {
			return nil, fmt.Errorf("(config-app) %w: %s", ErrInvalidMode, modeStr)
		}
		config.DefaultMode = mode
	}

	return config, nil
}
