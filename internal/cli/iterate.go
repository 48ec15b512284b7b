package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/hupe1980/imbin"
	"github.com/hupe1980/imbin/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type iterateOptions struct {
	dataset     datasetOptions
	bufferSize  int
	epochs      int
	rewind      string
	metricsAddr string
	silent      bool
}

func newIterateCmd(g *globalOptions) *cobra.Command {
	o := &iterateOptions{}

	cmd := &cobra.Command{
		Use:   "iterate",
		Short: "Decode every sample of a dataset and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIterate(cmd, g, o)
		},
	}

	o.dataset.register(cmd)
	f := cmd.Flags()
	f.IntVar(&o.bufferSize, "buffer-size", 0, "Prefetch depth in pages (default from config)")
	f.IntVar(&o.epochs, "epochs", 1, "Number of epochs")
	f.StringVar(&o.rewind, "rewind", "", "Rewind policy (full, current)")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&o.silent, "silent", false, "Suppress the startup log line")
	return cmd
}

func runIterate(cmd *cobra.Command, g *globalOptions, o *iterateOptions) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	cfg, err := o.dataset.load()
	if err != nil {
		return err
	}
	if o.bufferSize > 0 {
		cfg.BufferSize = o.bufferSize
	}
	if o.rewind != "" {
		if err := cfg.SetParam("rewind", o.rewind); err != nil {
			return err
		}
	}
	if o.silent {
		cfg.Silent = true
	}

	store, err := g.openStore(ctx)
	if err != nil {
		return err
	}

	var metrics imbin.MetricsCollector = imbin.NoopMetricsCollector{}
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		pc, err := observability.NewPrometheusCollector(reg)
		if err != nil {
			return err
		}
		metrics = pc

		stop, err := serveMetrics(o.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
		fmt.Fprintf(w, "metrics available at http://%s/metrics\n", o.metricsAddr)
	}

	it := imbin.New(cfg,
		imbin.WithStore(store),
		imbin.WithLogger(g.logger()),
		imbin.WithMetricsCollector(metrics),
	)
	if err := it.Init(ctx); err != nil {
		return err
	}
	defer it.Close()

	bold := color.New(color.Bold)
	for epoch := range o.epochs {
		if epoch > 0 {
			if err := it.BeforeFirst(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		var samples, pixels int64
		for s, err := range it.Samples(ctx) {
			if err != nil {
				return err
			}
			samples++
			pixels += int64(s.Data.H * s.Data.W)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		elapsed := time.Since(start)
		rate := float64(samples) / max(elapsed.Seconds(), 1e-9)
		bold.Fprintf(w, "epoch %d:", epoch+1)
		fmt.Fprintf(w, " %d samples, %d pixels in %s (%.1f samples/s)\n", samples, pixels, elapsed.Round(time.Millisecond), rate)
	}

	st := it.Stats()
	fmt.Fprintf(w, "prefetch: %d slots, high water %d\n", st.Allocated, st.HighWater)
	return nil
}

// serveMetrics starts a Prometheus endpoint and returns its shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			color.New(color.FgRed).Printf("metrics server: %v\n", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
