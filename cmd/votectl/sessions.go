package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/httpapi"
	"github.com/R3E-Network/voting_client/internal/voting"
)

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		labels  string
		closeIn time.Duration
		closeAt int64
		voters  []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a voting session",
		Long: `Create a voting session with 1 to 10 options.

Labels are comma separated and may contain letters, digits and spaces.
The session closes one hour from now unless --close-in or --close-at is given.
Passing --voter makes the session private to the listed addresses.`,
		Example: `  votectl create --labels "Cat, Dog, Cow" --close-in 24h
  votectl create --labels "Yes,No" --voter <address> --voter <address>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, b backend) error {
				in := voting.CreateInput{Labels: labels}
				switch {
				case closeAt != 0:
					in.CloseTime = closeAt
				case closeIn != 0:
					in.CloseTime = b.Now() + int64(closeIn/time.Second)
				case opts.server != "":
					in.CloseTime = b.Now() + domain.DefaultSessionDuration
				}
				if len(voters) > 0 {
					in.IsPrivate = true
					in.AllowedVoters = strings.Join(voters, ",")
				}

				res, err := submit(cmd, "creating session", func() (httpapi.OperationResponse, error) {
					return b.Create(ctx, in)
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				return printResult(cmd.OutOrStdout(), "Created session", res)
			})
		},
	}
	cmd.Flags().StringVarP(&labels, "labels", "l", "", "comma separated option labels")
	cmd.Flags().DurationVar(&closeIn, "close-in", 0, "close the session after this long")
	cmd.Flags().Int64Var(&closeAt, "close-at", 0, "close the session at this unix time")
	cmd.Flags().StringSliceVar(&voters, "voter", nil, "allowed voter address; repeat for a private session")
	cmd.MarkFlagsMutuallyExclusive("close-in", "close-at")
	_ = cmd.MarkFlagRequired("labels")
	return cmd
}

func newVoteCmd(opts *rootOptions) *cobra.Command {
	var choice int
	cmd := &cobra.Command{
		Use:   "vote <session> --choice <index>",
		Short: "Vote for one option of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var selected *int
			if cmd.Flags().Changed("choice") {
				selected = &choice
			}
			return opts.run(cmd, func(ctx context.Context, b backend) error {
				res, err := submit(cmd, "voting", func() (httpapi.OperationResponse, error) {
					return b.Vote(ctx, args[0], selected)
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				if err := printResult(cmd.OutOrStdout(), "Voted", res); err != nil {
					return err
				}
				s, err := b.Show(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return printSession(cmd.OutOrStdout(), s, b.Now())
			})
		},
	}
	cmd.Flags().IntVar(&choice, "choice", 0, "zero based option index")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		all    bool
		filter string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List open sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, b backend) error {
				sessions, err := b.List(ctx, all, filter)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), sessions)
				}
				return printSessions(cmd.OutOrStdout(), sessions, b.Now())
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include closed sessions")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only sessions whose address contains this text")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show a session and its tallies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b backend) error {
				s, err := b.Show(ctx, args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), s)
				}
				return printSession(cmd.OutOrStdout(), s, b.Now())
			})
		},
	}
}

func newCloseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <session>",
		Short: "Close a session you created and reclaim its rent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b backend) error {
				res, err := submit(cmd, "closing session", func() (httpapi.OperationResponse, error) {
					return b.Close(ctx, args[0])
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				return printResult(cmd.OutOrStdout(), "Closed session "+args[0], res)
			})
		},
	}
}
