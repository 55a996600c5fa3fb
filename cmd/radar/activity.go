package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/audit"
)

func activityCmd(opts *rootOptions) *cobra.Command {
	var f audit.Filter
	var since, prune time.Duration
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the audit trail of submissions and explorations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if prune > 0 {
				n, err := a.audit.Cleanup(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "pruned %d entries older than %s\n", n, prune)
			}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			entries, err := a.audit.Query(ctx, &f)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(os.Stdout, entries)
			}
			for _, e := range entries {
				printEntry(os.Stdout, e)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Action, "action", "a", "", "submit_file, exploration_start or exploration_finish")
	cmd.Flags().StringVar(&f.Actor, "actor", "", "contributor name or domain")
	cmd.Flags().StringVarP(&f.Status, "status", "s", "", "success or error")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 50, "entries")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this, e.g. 24h")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete entries older than this first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printEntry(w io.Writer, e *audit.Entry) {
	status := green.Sprint("ok ")
	if e.Status == "error" {
		status = red.Sprint("err")
	}
	fmt.Fprintf(w, "%s %s %-18s %s %s\n", dim.Sprint(ago(e.Timestamp)), status, e.Action,
		bold.Sprint(e.Actor), dim.Sprintf("via %s", e.Transport))
	if e.Parameters != "" {
		fmt.Fprintf(w, "    %s\n", e.Parameters)
	}
	if e.Error != "" {
		fmt.Fprintf(w, "    %s\n", red.Sprint(e.Error))
	}
}
