package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog counts and the last run of every source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st syncStatus
			if err := c.newClient().getJSON("/api/sync-status", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := printStructured(out, c.outputFormat(), st); done {
				return err
			}

			fmt.Fprintf(out, "Status:      %s\n", st.Status)
			fmt.Fprintf(out, "Servers:     %d active (%d official, %d blockchain)\n",
				st.TotalServers, st.OfficialServers, st.BlockchainServers)
			if st.LastSyncedServer != nil {
				fmt.Fprintf(out, "Last synced: %s at %s\n", st.LastSyncedServer.Name, st.LastSyncedServer.UpdatedAt)
			}
			fmt.Fprintln(out)

			schedules := make([]string, 0, len(st.CronSchedules))
			for name := range st.CronSchedules {
				schedules = append(schedules, name)
			}
			sort.Strings(schedules)

			rows := make([][]string, 0, len(st.Sources))
			for _, s := range st.Sources {
				rows = append(rows, []string{
					s.Source,
					s.State,
					orDash(s.LastState),
					orDash(s.LastRunAt),
					strconv.Itoa(s.ServersProcessed),
					truncate(orDash(lastOutcome(s)), 60),
				})
			}
			if err := printTable(out, []string{"Source", "State", "Last State", "Last Run", "Processed", "Summary"}, rows); err != nil {
				return err
			}

			if len(schedules) > 0 {
				fmt.Fprintln(out)
				for _, name := range schedules {
					fmt.Fprintf(out, "schedule %s: %s\n", name, st.CronSchedules[name])
				}
			}
			return nil
		},
	}
}

func lastOutcome(s sourceStatus) string {
	if s.LastError != "" {
		return s.LastError
	}
	return s.Summary
}
