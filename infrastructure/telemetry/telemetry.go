// Package telemetry records OpenTelemetry metrics for boundary allocations
// and exported calls.
//
// Usage:
//
//	obs, _ := telemetry.NewObserver(telemetry.DefaultConfig())
//	mem := arena.New(arena.WithObserver(obs))
//	reg, _ := exports.NewRegistry(mem,
//		exports.WithMiddleware(telemetry.CallMetrics(telemetry.DefaultConfig())),
//	)
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/envelope"
	"github.com/reglet-dev/nativeabi/exports"
)

const instrumentationName = "github.com/reglet-dev/nativeabi"

// Config configures the instruments.
type Config struct {
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Attributes are added to every measurement, e.g. the library name.
	Attributes []attribute.KeyValue
}

// DefaultConfig returns a Config that resolves the global MeterProvider.
func DefaultConfig() Config {
	return Config{}
}

func (c Config) meter() metric.Meter {
	mp := c.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

// Observer is a ports.AllocationObserver that counts allocations, releases
// and failures, and tracks live bytes.
type Observer struct {
	allocs   metric.Int64Counter
	frees    metric.Int64Counter
	failures metric.Int64Counter
	sizes    metric.Int64Histogram
	live     metric.Int64UpDownCounter
	attrs    metric.MeasurementOption
}

// NewObserver creates the allocation instruments on cfg's meter.
func NewObserver(cfg Config) (*Observer, error) {
	meter := cfg.meter()
	o := &Observer{attrs: metric.WithAttributes(cfg.Attributes...)}

	var err error
	if o.allocs, err = meter.Int64Counter("nativeabi.alloc.count",
		metric.WithUnit("{block}"),
		metric.WithDescription("Number of blocks allocated"),
	); err != nil {
		return nil, err
	}
	if o.frees, err = meter.Int64Counter("nativeabi.free.count",
		metric.WithUnit("{block}"),
		metric.WithDescription("Number of blocks released"),
	); err != nil {
		return nil, err
	}
	if o.failures, err = meter.Int64Counter("nativeabi.alloc.failures",
		metric.WithUnit("{block}"),
		metric.WithDescription("Number of allocation requests that failed"),
	); err != nil {
		return nil, err
	}
	if o.sizes, err = meter.Int64Histogram("nativeabi.alloc.size",
		metric.WithUnit("By"),
		metric.WithDescription("Size of allocated blocks"),
	); err != nil {
		return nil, err
	}
	if o.live, err = meter.Int64UpDownCounter("nativeabi.memory.live",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes currently allocated and not yet released"),
	); err != nil {
		return nil, err
	}
	return o, nil
}

// OnAlloc implements ports.AllocationObserver.
func (o *Observer) OnAlloc(_ entities.Addr, size uint64) {
	ctx := context.Background()
	o.allocs.Add(ctx, 1, o.attrs)
	o.sizes.Record(ctx, clamp(size), o.attrs)
	o.live.Add(ctx, clamp(size), o.attrs)
}

// OnFree implements ports.AllocationObserver.
func (o *Observer) OnFree(_ entities.Addr, size uint64) {
	ctx := context.Background()
	o.frees.Add(ctx, 1, o.attrs)
	o.live.Add(ctx, -clamp(size), o.attrs)
}

// OnAllocFailure implements ports.AllocationObserver.
func (o *Observer) OnAllocFailure(_ uint64, _ error) {
	o.failures.Add(context.Background(), 1, o.attrs)
}

func clamp(size uint64) int64 {
	if size > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(size)
}

var _ ports.AllocationObserver = (*Observer)(nil)

// CallMetrics returns an exports middleware counting calls and recording
// their duration, labeled with the function name and whether the returned
// envelope carried an error. Instrument creation errors disable the
// middleware rather than failing registry construction.
func CallMetrics(cfg Config) exports.Middleware {
	meter := cfg.meter()
	calls, err := meter.Int64Counter("nativeabi.calls",
		metric.WithUnit("{call}"),
		metric.WithDescription("Number of exported function calls"),
	)
	if err != nil {
		return passthrough
	}
	duration, err := meter.Float64Histogram("nativeabi.call.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of exported function calls"),
	)
	if err != nil {
		return passthrough
	}

	return func(next exports.Handler) exports.Handler {
		return func(ctx exports.CallContext, p *envelope.Producer, args exports.Args) entities.Addr {
			start := time.Now()
			addr := next(ctx, p, args)

			status := "ok"
			if env, err := envelope.NewConsumer(p.Memory()).Open(addr, ctx.Declaration().Returns); err != nil || env.Failed() {
				status = "error"
			}
			attrs := make([]attribute.KeyValue, 0, len(cfg.Attributes)+2)
			attrs = append(attrs, cfg.Attributes...)
			attrs = append(attrs,
				attribute.String("function", ctx.FunctionName()),
				attribute.String("status", status),
			)
			opt := metric.WithAttributes(attrs...)
			calls.Add(ctx, 1, opt)
			duration.Record(ctx, time.Since(start).Seconds(), opt)
			return addr
		}
	}
}

func passthrough(next exports.Handler) exports.Handler { return next }
