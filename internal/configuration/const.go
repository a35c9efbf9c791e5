package configuration

const (
	// DefaultConfigFile is the location of the application settings.
	DefaultConfigFile = "/data/adb/meta-hybrid/config.conf"

	// DefaultModuleDir is the root directory containing all installed modules.
	DefaultModuleDir = "/data/adb/modules"

	// DefaultMountPoint is the root directory modules are staged at before
	// being applied onto the partitions.
	DefaultMountPoint = "/data/adb/meta-hybrid/mnt"

	// DefaultImageDir is the directory the packed module images are kept in.
	DefaultImageDir = "/data/adb/meta-hybrid/img"

	// DefaultRunDir is the directory for runtime files.
	DefaultRunDir = "/data/adb/meta-hybrid/run"

	// DefaultStateFile is the location of the persisted runtime state.
	DefaultStateFile = DefaultRunDir + "/daemon_state.json"

	// DefaultLogFile is the location of the daemon log.
	DefaultLogFile = "/data/adb/meta-hybrid/daemon.log"

	// DefaultMkfsPath is the location of the external image building tool.
	DefaultMkfsPath = "/data/adb/meta-hybrid/tools/mkfs.erofs"

	// DefaultMountSource is the source name given to created mounts.
	DefaultMountSource = "KSU"

	// DefaultSelfID is the module ID of this manager itself.
	DefaultSelfID = "meta-hybrid"

	SettingModuleDir   = "moduledir"
	SettingMountPoint  = "mountpoint"
	SettingImageDir    = "imagedir"
	SettingTempDir     = "tempdir"
	SettingMountSource = "mountsource"
	SettingDefaultMode = "default_mode"
	SettingMkfsPath    = "mkfs_path"
	SettingEnableNuke  = "enable_nuke"
	SettingStateFile   = "state_file"
	SettingLogFile     = "log_file"
	SettingVerbose     = "verbose"
	SettingSelfID      = "self_id"
)
