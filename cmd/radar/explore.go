package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/exploration"
)

func exploreCmd(opts *rootOptions) *cobra.Command {
	var req exploration.StartRequest
	var wait bool
	cmd := &cobra.Command{
		Use:   "explore <url>",
		Short: "Queue an exploration of a website",
		Long: `Queue an exploration. A running "radar serve" on the same database picks
it up; with --wait it is driven in this process and the command returns when
it is finished.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req.URL = args[0]
			e, err := a.orch.Start(ctx, &req)
			if err != nil {
				return err
			}
			if !wait {
				printExploration(os.Stdout, e)
				return nil
			}

			runCtx, stop := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				a.orch.Run(runCtx)
				close(done)
			}()
			defer func() {
				stop()
				<-done
			}()

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
				cur, err := a.orch.Get(ctx, e.ID)
				if err != nil {
					return err
				}
				if cur != nil && cur.Status.Terminal() {
					printExploration(os.Stdout, cur)
					if cur.Status == exploration.StatusFailed {
						return fmt.Errorf("exploration %s failed", cur.ID)
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVarP(&req.Instructions, "instructions", "i", "", "what the agent should focus on")
	cmd.Flags().StringVarP(&req.Provider, "provider", "p", "", "asteroid, browseruse or local (default from config)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "drive the exploration here and wait for the result")
	return cmd
}
