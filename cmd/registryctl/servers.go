package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) serversCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Browse the normalized server catalog",
	}

	var params serverListParams
	list := &cobra.Command{
		Use:   "list",
		Short: "List servers, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var page serverList
			if err := c.newClient().getJSON("/api/v0/servers", params, &page); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := printStructured(out, c.outputFormat(), page); done {
				return err
			}

			rows := make([][]string, 0, len(page.Servers))
			for _, s := range page.Servers {
				rows = append(rows, []string{s.ID, truncate(s.Name, 40), s.Status, orDash(s.LatestVersion), remoteURLs(s.Remotes)})
			}
			if err := printTable(out, []string{"ID", "Name", "Status", "Version", "Remotes"}, rows); err != nil {
				return err
			}
			if page.Metadata.NextCursor != nil {
				fmt.Fprintf(out, "\nnext cursor: %s\n", *page.Metadata.NextCursor)
			}
			return nil
		},
	}
	list.Flags().IntVar(&params.Limit, "limit", 20, "Page size (1-100)")
	list.Flags().StringVar(&params.Cursor, "cursor", "", "Cursor from a previous page")
	list.Flags().StringVar(&params.Search, "search", "", "Case-insensitive name filter")
	list.Flags().StringVar(&params.UpdatedSince, "updated-since", "", "Only servers updated after this RFC3339 time")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s mcpServer
			if err := c.newClient().getJSON("/api/v0/servers/"+escape(args[0]), nil, &s); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := printStructured(out, c.outputFormat(), s); done {
				return err
			}
			fmt.Fprintf(out, "ID:          %s\n", s.ID)
			fmt.Fprintf(out, "Name:        %s\n", s.Name)
			fmt.Fprintf(out, "Status:      %s\n", s.Status)
			fmt.Fprintf(out, "Version:     %s\n", orDash(s.LatestVersion))
			fmt.Fprintf(out, "Description: %s\n", orDash(s.Description))
			fmt.Fprintf(out, "Remotes:     %s\n", remoteURLs(s.Remotes))
			fmt.Fprintf(out, "Updated:     %s\n", s.UpdatedAt)
			return nil
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func remoteURLs(raw json.RawMessage) string {
	var remotes []struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(raw, &remotes) != nil || len(remotes) == 0 {
		return "-"
	}
	urls := make([]string, len(remotes))
	for i, r := range remotes {
		urls[i] = r.URL
	}
	return strings.Join(urls, ", ")
}
