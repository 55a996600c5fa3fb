package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/exploration"
	"github.com/hazyhaar/radar/knowledge"
)

var (
	bold  = color.New(color.Bold)
	dim   = color.New(color.Faint)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
	amber = color.New(color.FgYellow)
)

func ago(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func searchCmd(opts *rootOptions) *cobra.Command {
	var domain string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over knowledge files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.knowledge.SearchFiles(cmd.Context(), strings.Join(args, " "), domain, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(os.Stdout, files)
			}
			printFiles(os.Stdout, files)
			return nil
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "restrict to one domain")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printFiles(w io.Writer, files []*knowledge.File) {
	if len(files) == 0 {
		dim.Fprintln(w, "no matching files")
		return
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s %s  %s\n", bold.Sprint(f.Domain), f.Path, dim.Sprintf("v%d, %s by %s", f.Version, ago(f.LastUpdated), f.LastContributor))
		fmt.Fprintf(w, "    %s: %s\n", f.Title, f.Summary)
	}
}

func leaderboardCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top contributors by points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			top, err := a.knowledge.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printLeaderboard(os.Stdout, top)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries")
	return cmd
}

func printLeaderboard(w io.Writer, top []*knowledge.Contributor) {
	if len(top) == 0 {
		dim.Fprintln(w, "no contributors yet")
		return
	}
	for i, c := range top {
		rank := fmt.Sprintf("%2d.", i+1)
		if i < 3 {
			rank = amber.Sprint(rank)
		}
		fmt.Fprintf(w, "%s %-24s %s  %s\n", rank, c.Name,
			green.Sprintf("%6s pts", humanize.Comma(int64(c.TotalPoints))),
			dim.Sprintf("%d contributions, last %s", c.ContributionCount, ago(c.UpdatedAt)))
	}
}

func statsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Knowledge base and exploration counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.knowledge.Stats(ctx)
			if err != nil {
				return err
			}
			counts, err := a.orch.Counts(ctx)
			if err != nil {
				return err
			}
			row := func(label string, n int) {
				fmt.Printf("%s %s\n", bold.Sprintf("%-24s", label), humanize.Comma(int64(n)))
			}
			row("sites", st.Sites)
			row("files", st.Files)
			row("contributions", st.Contributions)
			row("contributors", st.Contributors)
			for _, s := range []exploration.Status{exploration.StatusQueued, exploration.StatusRunning, exploration.StatusCompleted, exploration.StatusFailed} {
				row("explorations "+string(s), counts[s])
			}
			return nil
		},
	}
}

func auditCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute aggregates from the contribution ledger and report mismatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			diffs, err := a.knowledge.Audit(cmd.Context())
			if err != nil {
				return err
			}
			if len(diffs) == 0 {
				green.Println("ledger consistent")
				return nil
			}
			for _, d := range diffs {
				fmt.Printf("%s %s %s: expected %d, got %d\n", red.Sprint("MISMATCH"), d.Kind, d.Key, d.Expected, d.Actual)
			}
			return fmt.Errorf("%d discrepancies", len(diffs))
		},
	}
}

func explorationsCmd(opts *rootOptions) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "explorations",
		Short: "List recent explorations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var list []*exploration.Exploration
			if status != "" {
				list, err = a.orch.ListByStatus(ctx, exploration.Status(status), limit)
			} else {
				list, err = a.orch.List(ctx, limit)
			}
			if err != nil {
				return err
			}
			for _, e := range list {
				printExploration(os.Stdout, e)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "queued, running, completed or failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries")
	return cmd
}

func statusColor(s exploration.Status) *color.Color {
	switch s {
	case exploration.StatusCompleted:
		return green
	case exploration.StatusFailed:
		return red
	default:
		return amber
	}
}

func printExploration(w io.Writer, e *exploration.Exploration) {
	fmt.Fprintf(w, "%s %-10s %s %s\n", dim.Sprint(e.ID), statusColor(e.Status).Sprint(e.Status), bold.Sprint(e.Domain),
		dim.Sprintf("via %s, started %s", e.Provider, ago(e.StartedAt)))
	if e.LiveURL != "" {
		fmt.Fprintf(w, "    live: %s\n", e.LiveURL)
	}
	if e.ResultSummary != "" {
		fmt.Fprintf(w, "    %s\n", e.ResultSummary)
	}
}
