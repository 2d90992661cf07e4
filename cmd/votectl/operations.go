package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/journal"
)

func newOperationsCmd(opts *rootOptions) *cobra.Command {
	var (
		kind    string
		status  string
		session string
		wallet  string
		limit   int
	)
	cmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "List journaled operations, newest first",
		Long: `List journaled operations, newest first.

The memory journal only holds operations of the current process, so this is
mostly useful with --server or with the postgres journal driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := journal.Filter{
				Kind:           domain.OperationKind(kind),
				Status:         domain.OperationStatus(status),
				SessionAddress: session,
				Wallet:         wallet,
				Limit:          limit,
			}
			if kind != "" && !filter.Kind.Valid() {
				return fmt.Errorf("unknown kind %q, want create, vote or close", kind)
			}
			return opts.run(cmd, func(ctx context.Context, b backend) error {
				ops, err := b.Operations(ctx, filter)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), ops)
				}
				return printOperations(cmd.OutOrStdout(), ops)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "create, vote or close")
	cmd.Flags().StringVar(&status, "status", "", "draft, validating, submitted, confirmed or failed")
	cmd.Flags().StringVar(&session, "session", "", "session address")
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum operations to list")
	return cmd
}
