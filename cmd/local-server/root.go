package main

import (
	"github.com/spf13/cobra"

	"local_server/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// configPath is the --config flag value
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "local-server",
	Short: "Local HTTP server for loopback tooling",
	Long: `local-server answers HTTP requests from local development tools.

Registered routes take priority over static files, static files are only
served for GET, and cross-origin access is granted to localhost and
127.0.0.1 origins only.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("local-server version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a config file (default: ./local-server.{toml,yaml,json})")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
