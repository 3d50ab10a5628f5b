package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/pinba/internal/metrics"
	"github.com/torosent/pinba/internal/output"
	"github.com/torosent/pinba/internal/packet"
	"github.com/torosent/pinba/internal/runner"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/threshold"
	"github.com/torosent/pinba/internal/transport"
)

const (
	progressInterval   = time.Second
	defaultBenchTotal  = 1000
	defaultBenchTimers = 8
)

func benchSubcommand(a *app) *cobra.Command {
	var (
		flags      requestFlags
		send       bool
		thresholds []string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure packet encoding and sending throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.bench(cmd, flags, send, thresholds)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&send, "send", false, "Send every encoded packet to the configured servers")
	cmd.Flags().StringArrayVar(&thresholds, "threshold", nil, "Assertion such as 'packet_duration:p99 < 250' (repeatable)")
	return cmd
}

func (a *app) bench(cmd *cobra.Command, flags requestFlags, send bool, rawThresholds []string) error {
	thresholds, err := threshold.ParseMultiple(rawThresholds)
	if err != nil {
		return err
	}
	req, err := flags.load()
	if err != nil {
		return err
	}
	if len(req.Timers) == 0 {
		for i := 0; i < defaultBenchTimers; i++ {
			req.Timers = append(req.Timers, timerInput{
				Tags:  tags.Of("group", "bench", "op", fmt.Sprintf("op%d", i)),
				Value: time.Duration(i+1) * time.Millisecond,
				Hits:  1,
			})
		}
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}
	if err := req.apply(c); err != nil {
		return err
	}
	p := c.Data(0)

	var sender transport.Sender
	if send && a.cfg.Enabled {
		if sender, err = a.sender(); err != nil {
			return err
		}
	}

	total := a.cfg.Total
	if total == 0 && a.cfg.Duration == 0 {
		total = defaultBenchTotal
	}

	collector := metrics.NewCollector()
	r := runner.New(runner.Options{
		Concurrency:   a.cfg.Concurrency,
		TotalRequests: total,
		Duration:      a.cfg.Duration,
		RatePerSecond: a.cfg.Rate,
		Requester:     runner.WithLogging(benchRequester(p, sender, collector), a.log),
	})

	var progress *output.ProgressReporter
	if !a.cfg.JSONOutput {
		progress = output.NewProgressReporter(collector, progressInterval, cmd.ErrOrStderr())
		progress.Start()
	}
	result := r.Run(cmd.Context())
	if progress != nil {
		progress.Stop()
	}

	stats := collector.Stats(result.Duration)
	results := threshold.Evaluate(thresholds, stats)
	if a.cfg.JSONOutput {
		if err := output.PrintJSONReport(cmd.OutOrStdout(), stats); err != nil {
			return err
		}
	} else {
		output.PrintReport(cmd.OutOrStdout(), stats)
		output.PrintThresholdResults(cmd.OutOrStdout(), results)
	}

	if result.Errors > 0 {
		return fmt.Errorf("%d packets failed", result.Errors)
	}
	if n := threshold.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d thresholds failed", n, len(results))
	}
	return nil
}

// benchRequester encodes p and, with a sender, delivers it. Each call is
// one sample in collector.
func benchRequester(p *packet.Packet, sender transport.Sender, collector *metrics.Collector) runner.Requester {
	return runner.RequesterFunc(func(ctx context.Context) error {
		start := time.Now()
		data, err := p.Marshal()
		if err == nil && sender != nil {
			err = sender.Send(ctx, data)
		}
		collector.RecordRequest(time.Since(start), len(data), err)
		return err
	})
}
