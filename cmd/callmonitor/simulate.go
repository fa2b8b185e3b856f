package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/callquality/config"
	"github.com/opd-ai/callquality/metrics"
	"github.com/opd-ai/callquality/server"
	"github.com/opd-ai/callquality/testing"
	"github.com/spf13/cobra"
)

type simulateOptions struct {
	calls    int
	duration time.Duration
	profile  string
}

func newSimulateCommand(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Monitor simulated calls and print aggregated reports as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.calls < 1 {
				return fmt.Errorf("--calls must be at least 1, got %d", opts.calls)
			}
			cfg.Engine.UseSimulation = true
			if opts.profile != "" {
				if _, ok := testing.ProfileByName(opts.profile); !ok {
					return fmt.Errorf("--profile: unknown profile %q", opts.profile)
				}
				cfg.Engine.SimulationProfile = opts.profile
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}

			return runSimulation(ctx, cfg, opts.calls, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.calls, "calls", 3, "number of simulated calls")
	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "how long to run, 0 runs until interrupted")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "network profile: excellent, good, fair or poor")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, calls int, out io.Writer) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	reports := make(chan metrics.AggregatedReport, 1)
	srv.Aggregator().OnReport(func(r metrics.AggregatedReport) {
		select {
		case reports <- r:
		default:
		}
	})

	for i := 0; i < calls; i++ {
		if _, err := srv.CreateSimulatedCall(); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-reports:
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	}
}
