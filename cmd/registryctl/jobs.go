package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

const jobsPath = "/api/jobs/v1alpha1/sync"

func (c *cli) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel sync jobs",
	}

	var params jobListParams
	list := &cobra.Command{
		Use:   "list",
		Short: "List sync jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res jobList
			if err := c.newClient().getJSON(jobsPath, params, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := printStructured(out, c.outputFormat(), res); done {
				return err
			}
			rows := make([][]string, 0, len(res.Jobs))
			for _, j := range res.Jobs {
				rows = append(rows, []string{j.ID, j.Source, j.Trigger, j.State, j.RequestedAt, strconv.Itoa(j.ServersProcessed)})
			}
			if err := printTable(out, []string{"ID", "Source", "Trigger", "State", "Requested", "Processed"}, rows); err != nil {
				return err
			}
			if res.NextPageToken != "" {
				fmt.Fprintf(out, "\nnext page token: %s\n", res.NextPageToken)
			}
			return nil
		},
	}
	list.Flags().StringVar(&params.Source, "source", "", "Filter by source")
	list.Flags().StringVar(&params.State, "state", "", "Filter by state (queued, running, succeeded, failed, canceled)")
	list.Flags().StringVar(&params.Trigger, "trigger", "", "Filter by trigger (manual, scheduled)")
	list.Flags().IntVar(&params.PageSize, "page-size", 20, "Page size")
	list.Flags().StringVar(&params.PageToken, "page-token", "", "Token from a previous page")

	get := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one sync job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var j job
			if err := c.newClient().getJSON(jobsPath+"/"+escape(args[0]), nil, &j); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := printStructured(out, c.outputFormat(), j); done {
				return err
			}
			return printTable(out, []string{"Field", "Value"}, [][]string{
				{"ID", j.ID},
				{"Source", j.Source},
				{"Trigger", j.Trigger},
				{"Requested By", j.RequestedBy},
				{"State", j.State},
				{"Attempts", strconv.Itoa(j.AttemptCount)},
				{"Processed", strconv.Itoa(j.ServersProcessed)},
				{"Message", orDash(j.Message)},
				{"Error", orDash(j.LastError)},
			})
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running sync job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res map[string]string
			if err := c.newClient().postJSON(jobsPath+"/"+escape(args[0])+":cancel", nil, &res); err != nil {
				return err
			}
			if done, err := printStructured(cmd.OutOrStdout(), c.outputFormat(), res); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", res["jobId"], res["status"])
			return nil
		},
	}

	cmd.AddCommand(list, get, cancel)
	return cmd
}
