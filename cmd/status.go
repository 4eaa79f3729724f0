package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print queue sizes and the current archive as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := instance.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var retain int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old archives, keeping the newest ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("retain") {
				retain = instance.Config().Archive.Retain
			}
			removed, err := instance.Cleanup(retain)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d archives\n", removed)
			return err
		},
	}
	cmd.Flags().IntVar(&retain, "retain", 0, "archives to keep besides the current one (defaults to archive.retain)")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty the crawl and deploy queues and the deploy cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := instance.Reset(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "queues and cache reset")
			return err
		},
	}
}
