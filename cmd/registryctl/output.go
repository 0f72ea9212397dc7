package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// printStructured writes v as json or yaml and reports true. For the table
// format it writes nothing and reports false, leaving the rendering to the
// caller.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "table", "":
		return false, nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		return true, printYAML(w, v)
	default:
		return true, fmt.Errorf("unsupported output format: %s (use table, json or yaml)", format)
	}
}

// printYAML renders v through its JSON form so keys follow the json tags
// in declaration order.
func printYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	unflow(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// unflow switches JSON's inline style to block style and drops the quotes
// JSON put on every string.
func unflow(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, child := range n.Content {
		unflow(child)
	}
}

func printTable(out io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(lo.Map(headers, func(h string, _ int) string { return strings.ToUpper(h) }), "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// truncate cuts s to at most n bytes, marking the cut with "...".
func truncate(s string, n int) string {
	switch {
	case len(s) <= n:
		return s
	case n <= 3:
		return s[:n]
	default:
		return s[:n-3] + "..."
	}
}

func orDash(s string) string {
	return lo.Ternary(s == "", "-", s)
}
