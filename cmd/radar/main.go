// Command radar serves the shared website knowledge base and runs browser
// explorations that feed it.
//
//	radar serve                   HTTP API, /mcp, exploration workers
//	radar mcp                     MCP over stdio
//	radar explore example.com     queue an exploration (--wait to run it here)
//	radar submit flow.md          submit a markdown knowledge file
//	radar search "checkout"       full-text search
//	radar context | list | read   browse a domain's knowledge
//	radar download example.com d  write a domain's files as markdown
//	radar leaderboard | stats | audit | explorations | activity
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/kit"
)

type rootOptions struct {
	configPath string
	db         string
	logLevel   string
}

// open loads the configuration, builds the logger and wires the services.
func (o *rootOptions) open(ctx context.Context) (*app, *slog.Logger, error) {
	cfg, err := LoadConfigFile(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.applyEnv(os.Getenv)
	if o.db != "" {
		cfg.DB = o.db
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	cfg.defaults()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "radar",
		Short:         "Radar - shared, versioned knowledge about websites for browser agents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("RADAR_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&opts.db, "db", "", "SQLite database path (default radar.db, env RADAR_DB)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(mcpCmd(opts))
	root.AddCommand(exploreCmd(opts))
	root.AddCommand(explorationsCmd(opts))
	root.AddCommand(submitCmd(opts))
	root.AddCommand(searchCmd(opts))
	root.AddCommand(contextCmd(opts))
	root.AddCommand(listCmd(opts))
	root.AddCommand(readCmd(opts))
	root.AddCommand(downloadCmd(opts))
	root.AddCommand(leaderboardCmd(opts))
	root.AddCommand(statsCmd(opts))
	root.AddCommand(auditCmd(opts))
	root.AddCommand(activityCmd(opts))
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(kit.WithTransport(ctx, "cli")); err != nil {
		fmt.Fprintln(os.Stderr, "radar:", err)
		os.Exit(1)
	}
}
