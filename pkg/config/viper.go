// Package config bootstraps configuration for the command layer. It finds
// the config file, loads an optional .env file and binds command flags to
// their config keys before handing off to the typed loader.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/places-crawler/internal/config"
)

// FlagBindings maps config keys to the command flags that override them.
// Keys whose flag is not defined on the running command are skipped.
var FlagBindings = map[string]string{
	"crawler.slow":         "slow",
	"source.kind":          "source",
	"source.snapshot_path": "snapshot",
	"storage.format":       "format",
	"status.addr":          "status-addr",
	"journal.dir":          "journal-dir",
	"logging.level":        "log-level",
}

// SearchPaths are tried in order when no --config flag is given.
func SearchPaths() []string {
	paths := []string{"config.yaml", "config.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".places-crawler", "config.yaml"))
	}
	return append(paths, "/etc/places-crawler/config.yaml")
}

// ResolvePath returns explicit when set, otherwise the first existing file
// from SearchPaths, otherwise "" (defaults and environment only).
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// InitConfig loads the configuration for cmd. It reads the persistent
// --config and --env-file flags.
func InitConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")
	if envFile == "" {
		envFile = ".env"
	}

	bindings := make(map[string]string, len(FlagBindings))
	for key, name := range FlagBindings {
		if flags.Lookup(name) != nil {
			bindings[key] = name
		}
	}

	return config.Load(ResolvePath(path),
		config.WithDotEnv(envFile),
		config.WithFlags(flags, bindings),
	)
}
