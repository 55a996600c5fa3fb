package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd(opts *rootOptions) *cobra.Command {
	var workers bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the radar tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, logger, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runCtx, stop := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				if workers {
					a.orch.Run(runCtx)
				}
			}()

			logger.Info("radar: mcp stdio", "workers", workers)
			err = a.mcpServer().Run(ctx, &mcp.StdioTransport{})
			stop()
			<-done
			return err
		},
	}
	cmd.Flags().BoolVar(&workers, "workers", true, "also drive queued explorations in this process")
	return cmd
}
