package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sentinel/internal/control"
)

var startCmd = &cobra.Command{
	Use:   "start <agent>",
	Short: "Start an agent in the running daemon",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLifecycle(args[0], "started", control.NewClient(controlSocketPath()).StartAgent)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <agent>",
	Short: "Stop an agent in the running daemon",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLifecycle(args[0], "stopped", control.NewClient(controlSocketPath()).StopAgent)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <agent>",
	Short: "Restart an agent in the running daemon",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLifecycle(args[0], "restarted", control.NewClient(controlSocketPath()).RestartAgent)
	},
}

func runLifecycle(name, verb string, op func(string) (*control.Response, error)) {
	resp, err := op(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s agent %q %s\n", green("✓"), name, verb)

	if snap, err := decodeSnapshot(resp.Data["agent"]); err == nil {
		printSnapshot(snap)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
}
