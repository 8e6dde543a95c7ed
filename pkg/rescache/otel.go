package rescache

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentationName OTel 仪表域名称。
const instrumentationName = "github.com/omeyang/rescache"

// MetricsOption 定义指标注册可选配置函数类型。
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	provider  metric.MeterProvider
	cacheName string
}

func defaultMetricsOptions() *metricsOptions {
	return &metricsOptions{provider: otel.GetMeterProvider()}
}

// WithMeterProvider 设置 MeterProvider。默认使用全局 Provider。
func WithMeterProvider(provider metric.MeterProvider) MetricsOption {
	return func(o *metricsOptions) {
		if provider != nil {
			o.provider = provider
		}
	}
}

// WithCacheName 设置 cache.name 指标属性，用于区分同一进程内的多个缓存实例。
func WithCacheName(name string) MetricsOption {
	return func(o *metricsOptions) {
		o.cacheName = name
	}
}

// RegisterMetrics 把缓存统计注册为 OTel 异步指标。
//
// 注册的指标:
//   - rescache.hits    累计命中次数
//   - rescache.misses  累计未命中次数
//   - rescache.entries 当前条目数
//
// 采集在 Reader 拉取时进行，对缓存热路径零开销。
// 返回的函数用于注销回调，应在缓存 Close 之前调用。
func RegisterMetrics[V any](c *Cache[V], opts ...MetricsOption) (unregister func() error, err error) {
	if c == nil {
		return nil, ErrNilCache
	}

	o := defaultMetricsOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	meter := o.provider.Meter(instrumentationName)

	hits, err := meter.Int64ObservableCounter("rescache.hits",
		metric.WithDescription("Total cache hits"),
		metric.WithUnit("{hit}"))
	if err != nil {
		return nil, fmt.Errorf("rescache: create hits instrument: %w", err)
	}
	misses, err := meter.Int64ObservableCounter("rescache.misses",
		metric.WithDescription("Total cache misses"),
		metric.WithUnit("{miss}"))
	if err != nil {
		return nil, fmt.Errorf("rescache: create misses instrument: %w", err)
	}
	entries, err := meter.Int64ObservableGauge("rescache.entries",
		metric.WithDescription("Current number of cache entries"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return nil, fmt.Errorf("rescache: create entries instrument: %w", err)
	}

	var attrs []attribute.KeyValue
	if o.cacheName != "" {
		attrs = append(attrs, attribute.String("cache.name", o.cacheName))
	}
	observeOpts := metric.WithAttributes(attrs...)

	reg, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		stats := c.Stats()
		observer.ObserveInt64(hits, clampUint64(stats.Hits), observeOpts)
		observer.ObserveInt64(misses, clampUint64(stats.Misses), observeOpts)
		observer.ObserveInt64(entries, int64(c.Size()), observeOpts)
		return nil
	}, hits, misses, entries)
	if err != nil {
		return nil, fmt.Errorf("rescache: register metrics callback: %w", err)
	}
	return reg.Unregister, nil
}

// clampUint64 把 uint64 安全转换为 int64，越界时饱和到最大值。
func clampUint64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
