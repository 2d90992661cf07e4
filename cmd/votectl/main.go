// Command votectl creates, lists, votes on and closes voting sessions held by
// the on-chain voting program, and can serve the same operations over HTTP.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/voting_client/internal/cli"
	"github.com/R3E-Network/voting_client/internal/errors"
	"github.com/R3E-Network/voting_client/internal/httpapi"
	"github.com/R3E-Network/voting_client/internal/httputil"
)

func main() {
	root := newRootCmd(&rootOptions{newRuntime: newRuntime})
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath  string
	keypairPath string
	server      string
	jsonOutput  bool
	timeout     time.Duration

	// newRuntime wires the in-process stack; replaced in tests.
	newRuntime func(ctx context.Context, opts *rootOptions) (*runtime, error)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "votectl",
		Short:         "Manage on-chain voting sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default config/votectl.yaml)")
	flags.StringVar(&opts.keypairPath, "keypair", "", "signing keypair file, overrides wallet.keypair_path")
	flags.StringVar(&opts.server, "server", "", "votectl server URL; runs commands remotely instead of in process")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of tables")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		newCreateCmd(opts),
		newVoteCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newCloseCmd(opts),
		newOperationsCmd(opts),
		newSweepCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// backend returns the remote backend when --server is set, else the local one.
// The returned func releases its resources.
func (o *rootOptions) backend(ctx context.Context) (backend, func(), error) {
	if o.server != "" {
		client := httputil.NewClient(httputil.ClientConfig{BaseURL: o.server, Timeout: o.timeout})
		return &remoteBackend{client: client, now: func() int64 { return time.Now().Unix() }}, func() {}, nil
	}
	rt, err := o.newRuntime(ctx, o)
	if err != nil {
		return nil, nil, err
	}
	return &localBackend{ctrl: rt.ctrl, wallet: rt.wallet}, rt.Close, nil
}

// run wraps a command body with the timeout and backend lifecycle.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	b, release, err := o.backend(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = fn(ctx, b)
	var fe *fieldErrors
	if stderrors.As(err, &fe) {
		fmt.Fprintln(cmd.ErrOrStderr(), "invalid input:")
		printFieldErrors(cmd.ErrOrStderr(), fe.fields)
		return err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", describe(err))
	}
	return err
}

// submit runs a write behind a spinner on stderr, leaving stdout to the result.
func submit(cmd *cobra.Command, label string, fn func() (httpapi.OperationResponse, error)) (httpapi.OperationResponse, error) {
	sp := cli.NewSpinner(cmd.ErrOrStderr(), label)
	sp.Start()
	res, err := fn()
	if err != nil {
		sp.Stop()
		return res, err
	}
	sp.Success("confirmed in " + cli.FormatDuration(sp.Elapsed()))
	return res, nil
}

// describe renders err for a terminal, preferring the service message.
func describe(err error) string {
	if se := errors.GetServiceError(err); se != nil {
		if se.Details != nil {
			if tx, ok := se.Details["tx_id"].(string); ok && tx != "" {
				return fmt.Sprintf("%s (%s, transaction %s)", se.Message, se.Code, tx)
			}
		}
		return fmt.Sprintf("%s (%s)", se.Message, se.Code)
	}
	return err.Error()
}

// exitCode maps failures onto distinct exit statuses.
func exitCode(err error) int {
	se := errors.GetServiceError(err)
	if se == nil {
		return 1
	}
	switch se.Category {
	case errors.CategoryValidation:
		return 2
	case errors.CategoryAuth:
		return 3
	default:
		return 4
	}
}
