package cmd

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/generalsystem/dfi/stats"
	"github.com/generalsystem/dfi/termstat"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// globals holds the persistent flags of the root command.
var globals struct {
	verbose     bool
	stats       bool
	metricsAddr string
}

// multiStatter sends stats to each of its Statters.
type multiStatter []dfi.Statter

func (m multiStatter) Count(name string, value int64, rate float64, tags ...string) {
	for _, s := range m {
		s.Count(name, value, rate, tags...)
	}
}

func (m multiStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	for _, s := range m {
		s.Gauge(name, value, rate, tags...)
	}
}

func (m multiStatter) Histogram(name string, value float64, rate float64, tags ...string) {
	for _, s := range m {
		s.Histogram(name, value, rate, tags...)
	}
}

func (m multiStatter) Set(name string, value string, rate float64, tags ...string) {
	for _, s := range m {
		s.Set(name, value, rate, tags...)
	}
}

func (m multiStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	for _, s := range m {
		s.Timing(name, value, rate, tags...)
	}
}

// connOptions turns the persistent flags into connection options. The
// returned func releases what they started and must always be called.
func connOptions(stderr io.Writer) ([]connect.Option, func(), error) {
	var (
		opts     []connect.Option
		statters multiStatter
		closers  []func()
	)
	done := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if globals.verbose {
		opts = append(opts, connect.OptLogger(dfi.NewVerboseLogger(stderr)))
	} else {
		opts = append(opts, connect.OptLogger(dfi.NewStdLogger(stderr)))
	}
	if globals.stats {
		c := termstat.NewCollector(stderr, termstat.DefaultInterval)
		statters = append(statters, c)
		closers = append(closers, func() { c.Close() })
	}
	if globals.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		statters = append(statters, stats.NewPromStatter(reg, stats.DefaultNamespace))
		ln, err := net.Listen("tcp", globals.metricsAddr)
		if err != nil {
			done()
			return nil, func() {}, errors.Wrap(err, "listening for metrics")
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Handler: mux}
		go func() { _ = srv.Serve(ln) }()
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}
	switch len(statters) {
	case 0:
	case 1:
		opts = append(opts, connect.OptStatter(statters[0]))
	default:
		opts = append(opts, connect.OptStatter(statters))
	}
	return opts, done, nil
}

// runWith runs fn with the connection options of the persistent flags.
func runWith(stderr io.Writer, fn func(opts ...connect.Option) error) error {
	opts, done, err := connOptions(stderr)
	if err != nil {
		return err
	}
	defer done()
	return fn(opts...)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
