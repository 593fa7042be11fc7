// Package subcommands implements edged's daemon, component, and graph
// subcommands, laid out the way memorizer lays out cmd/<noun>/subcommands.
package subcommands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/edgecore/edged/configstore"
	"github.com/edgecore/edged/edgelog"
	"github.com/edgecore/edged/lifecycle"
	"github.com/edgecore/edged/platform"
	"github.com/edgecore/edged/recipesource"
	"github.com/edgecore/edged/registry"
	"github.com/edgecore/edged/shellrunner"
	"github.com/edgecore/edged/stepgate"
)

// Global flags, registered on the root command and read by every
// subcommand, mirroring memorizer's package-level flag var convention.
var (
	RecipesDir      string
	ConfigPath      string
	SocketPath      string
	NucleusRoot     string
	LogLevel        string
	LogFile         string
	LogJournal      bool
	ShutdownTimeout time.Duration
)

// RegisterFlags installs the shared flags on root, called once from main.
func RegisterFlags(root *cobra.Command) {
	root.PersistentFlags().StringVar(&RecipesDir, "recipes-dir", "/etc/edged/recipes", "directory of component recipe files")
	root.PersistentFlags().StringVar(&ConfigPath, "config", "", "path to a config file (overrides the default search path)")
	root.PersistentFlags().StringVar(&SocketPath, "socket", "/run/edged.sock", "path to the daemon's status socket")
	root.PersistentFlags().StringVar(&NucleusRoot, "root", "/var/lib/edged", "nucleus root directory (exists ~ expansion base)")
	root.PersistentFlags().StringVar(&LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&LogFile, "log-file", "", "rotate logs to this file instead of stdout")
	root.PersistentFlags().BoolVar(&LogJournal, "log-journal", true, "mirror logs to the systemd journal when running under systemd")
	root.PersistentFlags().DurationVar(&ShutdownTimeout, "shutdown-timeout", 30*time.Second, "per-component shutdown deadline")
}

// newLogger builds the shared edgelog.Logger from the global flags.
func newLogger() *edgelog.Logger {
	return edgelog.New(edgelog.Cfg{
		Level:   LogLevel,
		File:    LogFile,
		Journal: LogJournal,
	})
}

// newRecipeSource builds and loads the filesystem recipe source.
func newRecipeSource() (*recipesource.FilesystemSource, error) {
	src := recipesource.NewFilesystemSource(RecipesDir)
	if err := src.Load(); err != nil {
		return nil, err
	}
	return src, nil
}

// newConfigStore builds and loads the config store, from ConfigPath if set
// or the default search path otherwise.
func newConfigStore() (*configstore.Store, error) {
	var store *configstore.Store
	if ConfigPath != "" {
		store = configstore.NewFromFile(ConfigPath)
	} else {
		store = configstore.New()
	}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

// newRegistry wires a fresh registry.Registry over src/cfg.
func newRegistry(src *recipesource.FilesystemSource, cfg *configstore.Store) *registry.Registry {
	return registry.New(src, cfg, newHandlerRegistry())
}

// newHandlerRegistry builds the process-wide table of class -> in-process
// handler factories. No built-in classes ship yet; a third-party handler
// factory calls Register on this before the daemon starts resolving
// recipes that declare a class.
func newHandlerRegistry() *registry.HandlerRegistry {
	return registry.NewHandlerRegistry()
}

// buildDeps assembles lifecycle.Deps shared by every component the
// scheduler drives.
func buildDeps(log *edgelog.Logger) lifecycle.Deps {
	runner := shellrunner.New(log)
	return lifecycle.Deps{
		Runner:          runner,
		Selector:        platform.NewSelector(platform.Detect()),
		Gate:            stepgate.New(runner, NucleusRoot),
		Log:             log,
		ShutdownTimeout: ShutdownTimeout,
	}
}
