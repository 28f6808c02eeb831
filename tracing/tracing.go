// Package tracing wraps opentracing spans and gocore.Stat timers behind a
// single StartTracing call, the way every exported RPC-style method in the
// indexer begins.
package tracing

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/ordishs/gocore"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/prometheus/client_golang/prometheus"
)

type options struct {
	parentStat *gocore.Stat
	histogram  prometheus.Histogram
	logger     ulogger.Logger
	logMessage string
	logArgs    []interface{}
	debugLog   bool
}

type Option func(*options)

func WithParentStat(stat *gocore.Stat) Option {
	return func(o *options) { o.parentStat = stat }
}

func WithHistogram(h prometheus.Histogram) Option {
	return func(o *options) { o.histogram = h }
}

func WithLogMessage(logger ulogger.Logger, format string, args ...interface{}) Option {
	return func(o *options) {
		o.logger = logger
		o.logMessage = format
		o.logArgs = args
	}
}

func WithDebugLogMessage(logger ulogger.Logger, format string, args ...interface{}) Option {
	return func(o *options) {
		o.logger = logger
		o.logMessage = format
		o.logArgs = args
		o.debugLog = true
	}
}

// StartTracing begins an opentracing span named operation, starts a
// gocore.Stat timer nested under parentStat (if given), and optionally logs
// a message. The returned deferFn must be called (typically via defer) to
// close the span, record the histogram observation and the stat timing.
func StartTracing(ctx context.Context, operation string, opts ...Option) (context.Context, opentracing.Span, func()) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger != nil {
		if o.debugLog {
			o.logger.Debugf(o.logMessage, o.logArgs...)
		} else {
			o.logger.Infof(o.logMessage, o.logArgs...)
		}
	}

	span, spanCtx := opentracing.StartSpanFromContext(ctx, operation)

	start := gocore.CurrentTime()

	return spanCtx, span, func() {
		span.Finish()

		if o.histogram != nil {
			o.histogram.Observe(time.Since(start).Seconds())
		}

		if o.parentStat != nil {
			o.parentStat.NewStat(operation, true).AddTime(start)
		}
	}
}

// InitOpenTracer configures the global opentracing tracer using Jaeger, at
// the given sampling rate. Mirrors the call site in main.go.
func InitOpenTracer(serviceName string, samplingRate float64) (func() error, error) {
	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "probabilistic",
			Param: samplingRate,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}

	opentracing.SetGlobalTracer(tracer)

	return closer.Close, nil
}
