package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run or queue source syncs",
	}

	var source string
	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Run one sync pass now and wait for the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res syncResult
			if err := c.newClient().postJSON("/api/sync/"+escape(source), nil, &res); err != nil {
				return err
			}
			if done, err := printStructured(cmd.OutOrStdout(), c.outputFormat(), res); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d servers processed)\n", res.Message, res.ServersProcessed)
			return nil
		},
	}
	trigger.Flags().StringVar(&source, "source", "mcp-remotes", "Source to sync: blockchain, official or mcp-remotes")

	var enqueueSource string
	enqueue := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a sync job for the background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res manualSyncResult
			if err := c.newClient().postJSON("/api/manual-sync", map[string]string{"type": enqueueSource}, &res); err != nil {
				return err
			}
			if done, err := printStructured(cmd.OutOrStdout(), c.outputFormat(), res); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\njob: %s\n", res.Message, res.JobID)
			return nil
		},
	}
	enqueue.Flags().StringVar(&enqueueSource, "source", "mcp-remotes", "Source to sync: blockchain, official or mcp-remotes")

	cmd.AddCommand(trigger, enqueue)
	return cmd
}
