package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/DeusData/fntrace/internal/config"
	"github.com/DeusData/fntrace/internal/sink"
	"github.com/DeusData/fntrace/internal/store"
	"github.com/DeusData/fntrace/internal/wrapper"
)

// sinkSet is the sink chain of one run plus whatever must be shut down
// after it.
type sinkSet struct {
	sink    *sink.Async
	closers []func(context.Context) error
}

// Close flushes queued records, then releases exporters and servers in
// reverse order.
func (s *sinkSet) Close(ctx context.Context) error {
	errs := []error{s.sink.Close(ctx)}
	if d := s.sink.Dropped(); d > 0 {
		slog.Warn("run.dropped", "records", d)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

type sinkOptions struct {
	store  *store.Store
	runID  string
	jsonl  io.Writer
	logger *slog.Logger
}

// newSinks builds the configured sink chain behind one Async queue.
func newSinks(ctx context.Context, cfg config.SinksConfig, opts sinkOptions) (*sinkSet, error) {
	set := &sinkSet{}
	var sinks sink.Multi

	if cfg.EffectiveLog() {
		logger := opts.logger
		if logger == nil {
			logger = slog.Default()
		}
		sinks = append(sinks, sink.NewSlog(logger, slog.LevelInfo))
	}
	if opts.jsonl != nil {
		sinks = append(sinks, sink.NewJSONLines(opts.jsonl))
	}
	if cfg.EffectiveStore() && opts.store != nil {
		sinks = append(sinks, sink.NewStore(opts.store, opts.runID))
	}
	if cfg.PrometheusAddr != "" {
		reg := prometheus.NewRegistry()
		sinks = append(sinks, sink.NewPrometheus(reg))
		srv := serveMetrics(cfg.PrometheusAddr, reg)
		set.closers = append(set.closers, srv.Shutdown)
	}
	if cfg.OTLPEndpoint != "" {
		tp, err := newTracerProvider(ctx, cfg.OTLPEndpoint)
		if err != nil {
			set.closeAll(ctx)
			return nil, err
		}
		sinks = append(sinks, sink.NewOTel(tp.Tracer("fntrace")))
		set.closers = append(set.closers, tp.Shutdown)
	}

	var inner wrapper.Sink = sinks
	set.sink = sink.NewAsync(inner, cfg.EffectiveQueueSize())
	return set, nil
}

func (s *sinkSet) closeAll(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i](ctx)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("metrics.listen", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics.serve", "err", err)
		}
	}()
	return srv
}

func newTracerProvider(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

// openJSONL opens path for appending trace records, "-" meaning stdout.
func openJSONL(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
