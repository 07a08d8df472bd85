package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/sentinel/internal/control"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agent definitions",
	Run: func(cmd *cobra.Command, args []string) {
		client := control.NewClient(controlSocketPath())

		resp, err := client.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Configured Agents ==="))

		defs, _ := resp.Data["agents"].([]interface{})
		if len(defs) == 0 {
			fmt.Printf("  %s\n\n", gray("No agents configured"))
			return
		}

		for _, raw := range defs {
			def, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			enabled := gray("disabled")
			if on, _ := def["enabled"].(bool); on {
				enabled = green("enabled")
			}
			fmt.Printf("  %-20v %-15v %s\n", def["name"], def["kind"], enabled)
			if desc, _ := def["description"].(string); desc != "" {
				fmt.Printf("    %s\n", gray(desc))
			}
			fmt.Printf("    %s\n", gray(fmt.Sprintf("health_interval=%v max_retries=%v",
				def["health_interval"], def["max_retries"])))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
