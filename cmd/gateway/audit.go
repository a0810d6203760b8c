package main

import (
	"fmt"

	auditinfra "risk-gateway/middleware/audit/infra"

	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <file>",
		Short: "Recompute the hash chain of a JSON lines audit file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := auditinfra.VerifyFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d records verified\n", n)
			return nil
		},
	})
	return cmd
}
