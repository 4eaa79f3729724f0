package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/static-mirror/internal/crawler"
)

func newGenerateCmd() *cobra.Command {
	var maxSteps int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Crawl the site into a new archive",
		Long: `Creates a timestamped archive, seeds the crawl queue, and processes
batches until the primary and discovery crawls are exhausted. Interrupting
the command stops it between batches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if maxSteps > 0 {
				if _, err := instance.StartGenerate(cmd.Context()); err != nil {
					return err
				}
				for i := 0; i < maxSteps; i++ {
					res, err := instance.GenerateStep(cmd.Context())
					if err != nil {
						return err
					}
					printCrawlStep(cmd, res)
					if res.Done {
						break
					}
				}
				return nil
			}
			summary, err := instance.Generate(cmd.Context(), func(res crawler.StepResult) {
				printCrawlStep(cmd, res)
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "generate finished after %d batches\n", summary.Steps)
			return err
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "stop after this many batches (0 runs to completion)")
	return cmd
}

func printCrawlStep(cmd *cobra.Command, res crawler.StepResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%-9s processed=%d written=%d failed=%d excluded=%d discovered=%d remaining=%d\n",
		res.Phase, res.Processed, res.Written, res.Failed, res.Excluded, res.Discovered, res.Remaining)
}
