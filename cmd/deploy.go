package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

func newDeployCmd() *cobra.Command {
	var resetCache bool
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Publish the current archive to the configured target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := instance.Deploy(cmd.Context(), resetCache, func(res deployer.StepResult) {
				fmt.Fprintf(cmd.OutOrStdout(), "processed=%d uploaded=%d skipped=%d dropped=%d remaining=%d\n",
					res.Processed, res.Uploaded, res.Skipped, res.Dropped, res.Remaining)
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deploy finished after %d batches\n", summary.Steps)
			return err
		},
	}
	cmd.Flags().BoolVar(&resetCache, "reset-cache", false, "forget previously deployed hashes and send every file")
	return cmd
}

func newTestDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-deploy",
		Short: "Check credentials and reachability of the deploy target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := instance.TestDeploy(cmd.Context()); err != nil {
				return fmt.Errorf("deploy target unreachable: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "deploy target ok")
			return err
		},
	}
}
