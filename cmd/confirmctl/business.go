package main

import (
	"github.com/spf13/cobra"

	"confirmit/pkg/domain"
)

func newBusinessCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Review registered businesses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "approve <business-id>",
		Short: "Approve a pending business and anchor its initial trust score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseBusinessID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.Businesses.Approve(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	})
	return cmd
}
