package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/sentinel/internal/config"
)

// Version is the sentinel release version, overridden at build time
var Version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Background agent supervisor",
	Long: `Sentinel runs a fleet of background agents (code review, test running,
monitoring, git sync, and friends) under one supervisor.

Start the daemon with 'sentinel run'. The remaining commands talk to the
running daemon over its control socket.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sentinel.yaml",
		"path to the agent configuration file")
}

// controlSocketPath resolves the daemon's control socket. The config file is
// the source of truth; when it is absent (client commands may run from
// anywhere) the defaults plus environment overrides apply.
func controlSocketPath() string {
	if cfg, err := config.Load(configPath); err == nil {
		return cfg.Global.ControlSocket
	}
	if sock := os.Getenv("SENTINEL_CONTROL_SOCKET"); sock != "" {
		return sock
	}
	return config.DefaultGlobal().ControlSocket
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
