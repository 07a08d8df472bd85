package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sentinel/internal/control"
	"github.com/steveyegge/sentinel/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [agent]",
	Short: "Show agent status from the running daemon",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := control.NewClient(controlSocketPath())

		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		resp, err := client.Status(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Sentinel Agent Status ==="))

		if name != "" {
			snap, err := decodeSnapshot(resp.Data["agent"])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printSnapshot(snap)
			fmt.Println()
			return
		}

		snaps, err := decodeSnapshots(resp.Data["agents"])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(snaps) == 0 {
			fmt.Printf("  %s\n\n", gray("No agents configured"))
			return
		}

		running := 0
		for _, snap := range snaps {
			printSnapshot(snap)
			if snap.State == types.AgentRunning {
				running++
			}
		}
		fmt.Printf("\n  Total: %d configured, %d running\n\n", len(snaps), running)
	},
}

func printSnapshot(snap types.InstanceSnapshot) {
	paint := stateColor(snap.State)
	icon := "○"
	if snap.State == types.AgentRunning {
		icon = "●"
	}

	fmt.Printf("  %s %-20s %s", paint(icon), snap.Name, paint(string(snap.State)))
	if snap.Kind != "" {
		fmt.Printf("  (%s)", snap.Kind)
	}
	if snap.State == types.AgentRunning {
		fmt.Printf("  up %v", snap.Uptime.Round(time.Second))
	}
	if snap.RetryCount > 0 {
		fmt.Printf("  retries=%d", snap.RetryCount)
	}
	fmt.Println()
}

// decodeSnapshot converts the generic JSON payload back into a snapshot
func decodeSnapshot(raw interface{}) (types.InstanceSnapshot, error) {
	var snap types.InstanceSnapshot
	data, err := json.Marshal(raw)
	if err != nil {
		return snap, fmt.Errorf("re-encoding status payload: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decoding status payload: %w", err)
	}
	return snap, nil
}

func decodeSnapshots(raw interface{}) ([]types.InstanceSnapshot, error) {
	var snaps []types.InstanceSnapshot
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding status payload: %w", err)
	}
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("decoding status payload: %w", err)
	}
	return snaps, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
