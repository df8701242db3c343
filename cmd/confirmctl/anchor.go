package main

import (
	"github.com/spf13/cobra"

	anchorhandler "confirmit/internal/anchor/handler"
	scanmodels "confirmit/internal/scan/models"
)

func newAnchorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Inspect consensus log anchors",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <transaction-ref>",
		Short: "Check an anchor and, for receipt scans, re-verify the digest",
		Long: `verify looks up the local anchor record for a transaction ref. For receipt
scan anchors the snapshot is rebuilt from the stored session, hashed again
and compared with both the record and the consensus log message.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			ref := args[0]
			resp := anchorhandler.VerifyResponse{TransactionRef: ref}
			if resp.Verified, err = a.Anchors.VerifyAnchor(ctx, ref); err != nil {
				return err
			}
			if !resp.Verified {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Anchor, err = a.Anchors.Get(ctx, ref); err != nil {
				return err
			}
			if resp.Anchor.EntityType == (scanmodels.Snapshot{}).AnchorEntityType() {
				entity, err := a.ScanSnapshot(ctx, resp.Anchor.EntityID)
				if err != nil {
					return err
				}
				if resp.Integrity, err = a.Anchors.VerifyIntegrity(ctx, ref, entity); err != nil {
					return err
				}
				valid := resp.Integrity.Valid()
				resp.Valid = &valid
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	})
	return cmd
}
