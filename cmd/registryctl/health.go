package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health and readiness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := c.newClient()

			var healthResp map[string]any
			if err := client.getJSON("/healthz", nil, &healthResp); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}

			var readyResp map[string]any
			if err := client.getJSON("/readyz", nil, &readyResp); err != nil {
				// The server may still be starting.
				readyResp = map[string]any{"status": "not_ready", "error": err.Error()}
			}

			out := cmd.OutOrStdout()
			combined := map[string]any{"health": healthResp, "readiness": readyResp}
			if done, err := printStructured(out, c.outputFormat(), combined); done {
				return err
			}

			status, _ := healthResp["status"].(string)
			uptime, _ := healthResp["uptime"].(string)
			ready, _ := readyResp["status"].(string)
			return printTable(out, []string{"Check", "Status"}, [][]string{
				{"Liveness", status},
				{"Uptime", uptime},
				{"Readiness", ready},
			})
		},
	}
}
