package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/radar/knowledge"
)

func submitCmd(opts *rootOptions) *cobra.Command {
	var contributor, reason, agentType string
	cmd := &cobra.Command{
		Use:   "submit <file.md>",
		Short: "Submit a markdown knowledge file with YAML frontmatter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			req, err := knowledge.ParseKnowledgeFile(string(doc), contributor, reason, agentType)
			if err != nil {
				return err
			}

			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.knowledge.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s/%s v%d  %s\n", green.Sprint("submitted"), knowledge.NormalizeDomain(req.Domain), req.Path,
				res.Version, amber.Sprintf("+%d pts", res.PointsAwarded))
			return nil
		},
	}
	cmd.Flags().StringVar(&contributor, "contributor", os.Getenv("USER"), "contributor name")
	cmd.Flags().StringVarP(&reason, "reason", "m", "", "why this change was made")
	cmd.Flags().StringVar(&agentType, "agent-type", "human", "kind of contributor")
	cmd.MarkFlagRequired("reason")
	return cmd
}
