package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/voting_client/internal/httpapi"
	"github.com/R3E-Network/voting_client/internal/middleware"
	"github.com/R3E-Network/voting_client/internal/sweeper"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close every expired session created by the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.server != "" {
				return fmt.Errorf("sweep runs in process only")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			rt, err := opts.newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			sw, err := sweeper.New(sweeper.Config{
				Controller: rt.ctrl,
				Wallet:     rt.wallet,
				Schedule:   rt.cfg.Sweeper.Schedule,
				Logger:     rt.log.Named("sweeper"),
			})
			if err != nil {
				return err
			}
			report, err := sw.RunOnce(ctx)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", describe(err))
				return err
			}
			if opts.jsonOutput {
				failed := make(map[string]string, len(report.Failed))
				for addr, ferr := range report.Failed {
					failed[addr] = describe(ferr)
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"expired": report.Expired,
					"closed":  report.Closed,
					"failed":  failed,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Expired: %d  Closed: %d  Failed: %d\n", report.Expired, len(report.Closed), len(report.Failed))
			for _, addr := range report.Closed {
				fmt.Fprintf(out, "  closed %s\n", addr)
			}
			addrs := make([]string, 0, len(report.Failed))
			for addr := range report.Failed {
				addrs = append(addrs, addr)
			}
			sort.Strings(addrs)
			for _, addr := range addrs {
				fmt.Fprintf(out, "  failed %s: %s\n", addr, describe(report.Failed[addr]))
			}
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.server != "" {
				return fmt.Errorf("serve runs in process only")
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			rt, err := opts.newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			if address == "" {
				address = rt.cfg.HTTP.Address
			}
			return serve(ctx, rt, address)
		},
	}
	cmd.Flags().StringVar(&address, "addr", "", "listen address, overrides http.address")
	return cmd
}

func serve(ctx context.Context, rt *runtime, address string) error {
	log := rt.log.Named("server")

	limiter := middleware.NewRateLimiter(rt.cfg.HTTP.RateLimit, rt.cfg.HTTP.Burst, log)
	limiter.StartCleanup(ctx, time.Minute)

	if rt.cfg.Sweeper.Enabled {
		sw, err := sweeper.New(sweeper.Config{
			Controller: rt.ctrl,
			Wallet:     rt.wallet,
			Schedule:   rt.cfg.Sweeper.Schedule,
			Logger:     rt.log.Named("sweeper"),
		})
		if err != nil {
			return err
		}
		if err := sw.Start(ctx); err != nil {
			return err
		}
		defer sw.Stop()
	}

	server := &http.Server{
		Addr: address,
		Handler: httpapi.NewHandler(httpapi.Config{
			Controller:     rt.ctrl,
			Wallet:         rt.wallet,
			Logger:         log,
			RateLimiter:    limiter,
			AllowedOrigins: rt.cfg.HTTP.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Writes wait for ledger confirmation.
		WriteTimeout: rt.cfg.Chain.ConfirmTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("address", address).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
