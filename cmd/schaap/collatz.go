package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/danpilch/schaap/pkg/debug"
	"github.com/danpilch/schaap/pkg/profiler"
	"github.com/danpilch/schaap/pkg/sink"
	"github.com/danpilch/schaap/pkg/workload"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type collatzFlags struct {
	max          uint64
	profile      profiler.Config
	output       string
	format       string
	collectorURL string
	metricsAddr  string
	ringSize     int
	report       bool
	dump         bool
}

func newCollatzCmd(global *globalFlags) *cobra.Command {
	flags := collatzFlags{profile: profiler.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "collatz",
		Short: "Find the longest Collatz sequence while sampling the call stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(global)
			if err != nil {
				return err
			}
			return runCollatz(cmd.Context(), logger, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.Uint64Var(&flags.max, "max", 3_000_000, "largest seed to try")
	f.DurationVar(&flags.profile.Interval, "interval", profiler.DefaultInterval, "CPU time between samples")
	f.DurationVar(&flags.profile.Delay, "delay", profiler.DefaultDelay, "CPU time before the first sample")
	f.StringVarP(&flags.output, "output", "o", "-", "sample output file, - for stdout, empty to disable")
	f.StringVar(&flags.format, "format", string(sink.FormatText), "sample output format (text, json)")
	f.StringVar(&flags.collectorURL, "collector-url", "", "also ship samples to this collector endpoint")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve /metrics and pprof on this address while running")
	f.IntVar(&flags.ringSize, "ring-size", sink.DefaultRingCapacity, "samples kept in memory for --dump")
	f.BoolVar(&flags.report, "report", false, "print a session report when done")
	f.BoolVar(&flags.dump, "dump", false, "print the most recent samples when done")
	return cmd
}

func runCollatz(parent context.Context, logger *logrus.Logger, flags collatzFlags, stdout, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	ring := sink.NewRing(flags.ringSize)
	sinks := sink.Multi{ring}
	var timed []*debug.TimedSink
	var g run.Group

	if flags.output != "" {
		out, closeOut, err := openOutput(flags.output, stdout)
		if err != nil {
			return err
		}
		defer closeOut()

		format, err := sink.ParseFormat(flags.format)
		if err != nil {
			return err
		}
		w, err := sink.NewWriter(out, format)
		if err != nil {
			return err
		}
		async := sink.NewAsync(w, 0, logger)
		ts := debug.NewTimedSink("output", async)
		timed = append(timed, ts)
		sinks = append(sinks, ts)

		g.Add(func() error {
			return async.Run(ctx)
		}, func(error) {
			async.Close()
		})
	}

	if flags.collectorURL != "" {
		opts := sink.DefaultCollectorOptions()
		opts.URL = flags.collectorURL
		coll, err := sink.NewCollector(logger, reg, opts)
		if err != nil {
			return err
		}
		ts := debug.NewTimedSink("collector", coll)
		timed = append(timed, ts)
		sinks = append(sinks, ts)

		g.Add(func() error {
			return coll.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	if flags.metricsAddr != "" {
		_, stop, err := debug.StartServer(flags.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		g.Add(func() error {
			<-ctx.Done()
			return nil
		}, func(error) {
			stop()
			cancel()
		})
	}

	var stats profiler.Stats
	g.Add(func() error {
		sess, err := profiler.Begin(ctx, flags.profile, sinks,
			profiler.WithLogger(logger),
			profiler.WithRegisterer(reg),
		)
		if err != nil {
			return err
		}
		seed, workErr := workload.LongestSequenceContext(ctx, flags.max)
		err = sess.End()
		stats = sess.Stats()
		if workErr != nil {
			logger.WithError(workErr).Warn("Collatz search stopped early")
			return err
		}

		logger.WithFields(logrus.Fields{
			"max":     flags.max,
			"seed":    seed,
			"samples": stats.Samples,
			"cpu":     stats.CPUTime,
		}).Info("Longest Collatz sequence found")
		return err
	}, func(error) {
		cancel()
	})

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.WithField("signal", sigErr.Signal).Warn("Interrupted")
		err = nil
	}

	if flags.report {
		timings := make([]debug.SinkTiming, 0, len(timed))
		for _, ts := range timed {
			timings = append(timings, ts.Timing())
		}
		debug.SessionReport(stderr, stats, timings...)
	}
	if flags.dump {
		debug.DumpSamples(stderr, ring.Snapshot())
	}
	return err
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sample output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
