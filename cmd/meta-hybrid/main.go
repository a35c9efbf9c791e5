package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/KingMikhail/meta-hybrid-mount/internal/configuration"
	"github.com/KingMikhail/meta-hybrid-mount/internal/inventory"
	"github.com/KingMikhail/meta-hybrid-mount/internal/kernel"
	"github.com/KingMikhail/meta-hybrid-mount/internal/listing"
	"github.com/KingMikhail/meta-hybrid-mount/internal/mount"
	"github.com/KingMikhail/meta-hybrid-mount/internal/platform"
	"github.com/KingMikhail/meta-hybrid-mount/internal/schema"
	"github.com/KingMikhail/meta-hybrid-mount/internal/state"
	"github.com/KingMikhail/meta-hybrid-mount/internal/unmount"
	"github.com/KingMikhail/meta-hybrid-mount/internal/xattr"
)

const (
	stackTraceBufMax = 1 << 24
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string

	configFile = flag.String("config", configuration.DefaultConfigFile, "path to the configuration file")
	verbose    = flag.Bool("verbose", false, "enable debug logging")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <mount|list|teardown [-nuke]|status>\n", os.Args[0])
	flag.PrintDefaults()
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	sigChan2 := make(chan os.Signal, 1)
	signal.Notify(sigChan2, syscall.SIGUSR1)
	go func() {
		for range sigChan2 {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()
}

func newApp(config *configuration.AppConfiguration, configHandler *configuration.Handler) *App {
	osProvider := &schema.OS{}
	unixProvider := &schema.Unix{}

	env := platform.NewEnvironment(osProvider, config.TempDir, configuration.DefaultRunDir)
	batch := unmount.NewBatch(unixProvider, env)

	scanHandler := inventory.NewHandler(osProvider, unixProvider, config.DefaultMode)
	mountHandler := mount.NewHandler(osProvider, unixProvider,
		xattr.NewHandler(unixProvider),
		kernel.NewProber(osProvider),
		batch,
		mount.Options{
			MountPoint:  config.MountPoint,
			ImageDir:    config.ImageDir,
			TempRoot:    env.TempRoot(),
			MountSource: config.MountSource,
			MkfsPath:    config.MkfsPath,
		},
	)

	store := state.NewStore(osProvider, config.StateFile)
	table := state.NewProcMountInfo(osProvider, state.MountInfoFile)
	listHandler := listing.NewHandler(osProvider, scanHandler, store, configHandler)

	return NewApp(config, scanHandler, mountHandler, listHandler, store, table, batch)
}

func run(ctx context.Context, logs *SlogManager, args []string) error {
	configHandler := configuration.NewHandler(&configuration.GodotenvProvider{})

	config, err := configHandler.LoadAppConfiguration(*configFile)
	if err != nil {
		return fmt.Errorf("(main) %w", err)
	}

	if config.Verbose {
		logLevel.Set(slog.LevelDebug)
	}

	command := "mount"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	app := newApp(config, configHandler)

	switch command {
	case "mount", "teardown":
		closer, err := attachLogFile(logs, config.LogFile)
		if err != nil {
			slog.Warn("Logging to console only.",
				"err", err,
			)
		}
		defer closer()

		if command == "mount" {
			return app.Mount(ctx)
		}

		teardownFlags := flag.NewFlagSet("teardown", flag.ContinueOnError)
		nuke := teardownFlags.Bool("nuke", false, "also unmount every mount referencing the mount point")
		if err := teardownFlags.Parse(args); err != nil {
			return fmt.Errorf("(main) %w", err)
		}

		return app.Teardown(*nuke)

	case "list":
		return app.List(os.Stdout)

	case "status":
		return app.Status(os.Stdout)
	}

	usage()

	return fmt.Errorf("(main) unknown command: %s", command)
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flag.Usage = usage
	flag.Parse()

	logs := setupLogging(os.Stderr)
	if *verbose {
		logLevel.Set(slog.LevelDebug)
	}

	setupSignalHandlers(cancel)

	slog.Debug("Starting meta-hybrid.",
		"version", Version,
	)

	if err := run(ctx, logs, flag.Args()); err != nil {
		slog.Error("Failed to complete the operation.",
			"err", err,
		)
		ExitCode = 1
	}
}
