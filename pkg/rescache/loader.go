package rescache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// RecommendedLoadTimeout 推荐的回源加载超时时间。
const RecommendedLoadTimeout = 30 * time.Second

// defaultRetryDelay 回源重试的默认固定间隔。
const defaultRetryDelay = 100 * time.Millisecond

// LoadFunc 从后端加载数据的函数类型。
type LoadFunc[V any] func(ctx context.Context) (V, error)

// LoaderOption 定义 Loader 可选配置函数类型。
type LoaderOption[V any] func(*loaderOptions[V])

// loaderOptions Loader 内部配置。
type loaderOptions[V any] struct {
	loadTTL       time.Duration
	loadTimeout   time.Duration
	retryAttempts uint
	retryDelay    time.Duration
	breaker       *gobreaker.CircuitBreaker[V]
	logger        *slog.Logger
}

// defaultLoaderOptions 返回默认配置。
func defaultLoaderOptions[V any]() *loaderOptions[V] {
	return &loaderOptions[V]{
		loadTTL:       DefaultAsyncLoadTTL,
		loadTimeout:   RecommendedLoadTimeout,
		retryAttempts: 1,
		retryDelay:    defaultRetryDelay,
		logger:        slog.Default(),
	}
}

// WithLoadTTL 设置回源成功后写入缓存的过期时间。
// 非正值将被忽略，保留默认值 [DefaultAsyncLoadTTL]。
func WithLoadTTL[V any](d time.Duration) LoaderOption[V] {
	return func(o *loaderOptions[V]) {
		if d > 0 {
			o.loadTTL = d
		}
	}
}

// WithLoadTimeout 设置单次回源的独立超时时间。
//   - 0: 禁用独立超时
//   - 负值: 使用默认值 [RecommendedLoadTimeout]
func WithLoadTimeout[V any](d time.Duration) LoaderOption[V] {
	return func(o *loaderOptions[V]) {
		o.loadTimeout = d
	}
}

// WithLoadRetry 设置回源重试策略。
// attempts 为总尝试次数（含首次），小于等于 1 表示不重试。
// delay 为固定重试间隔，非正值使用默认 100ms。
func WithLoadRetry[V any](attempts uint, delay time.Duration) LoaderOption[V] {
	return func(o *loaderOptions[V]) {
		o.retryAttempts = attempts
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

// WithLoadBreaker 为回源加载启用熔断保护。
// 熔断器打开期间 GetOrLoad 直接返回 gobreaker.ErrOpenState。
func WithLoadBreaker[V any](settings gobreaker.Settings) LoaderOption[V] {
	return func(o *loaderOptions[V]) {
		o.breaker = gobreaker.NewCircuitBreaker[V](settings)
	}
}

// WithLoaderLogger 设置 Loader 日志记录器。传入 nil 禁用日志。
func WithLoaderLogger[V any](logger *slog.Logger) LoaderOption[V] {
	return func(o *loaderOptions[V]) {
		o.logger = logger
	}
}

// Loader 在缓存未命中时回源加载数据。
// 同一 key 的并发加载通过 singleflight 合并为一次回源，
// 可选的重试与熔断策略建立在单次回源之上。
type Loader[V any] struct {
	cache *Cache[V]
	opts  *loaderOptions[V]
	group singleflight.Group
}

// NewLoader 创建 Loader。cache 不能为 nil。
func NewLoader[V any](cache *Cache[V], opts ...LoaderOption[V]) (*Loader[V], error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	o := defaultLoaderOptions[V]()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Loader[V]{cache: cache, opts: o}, nil
}

// GetOrLoad 读取缓存，未命中时回源加载并写入缓存。
//
// 设计决策: 回源使用脱离调用方取消链的独立超时 context。多个调用方
// 共享同一次 singleflight 回源，任一调用方取消只影响自身等待，不会
// 中断其他等待者共享的加载过程。
//
// 加载成功后以 WithLoadTTL 配置的过期时间写入缓存。写入是尽力而为，
// 缓存满载导致写入被放弃时值仍会正常返回。
func (l *Loader[V]) GetOrLoad(ctx context.Context, key string, fn LoadFunc[V]) (V, error) {
	var zero V
	if fn == nil {
		return zero, ErrNilLoadFunc
	}
	if l.cache.closed.Load() {
		return zero, ErrCacheClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	ch := l.group.DoChan(key, func() (any, error) {
		// 排队期间其他并发请求可能已完成加载，先二次检查
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		loadCtx, cancel := independentTimeout(ctx, l.opts.loadTimeout)
		defer cancel()
		v, err := l.load(loadCtx, key, fn)
		if err != nil {
			return nil, err
		}
		l.cache.Insert(key, v, l.opts.loadTTL)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(V)
		if !ok {
			return zero, fmt.Errorf("rescache: unexpected singleflight result type %T", res.Val)
		}
		return v, nil
	}
}

// load 执行一次回源。熔断器判定在外层，重试策略在内层。
func (l *Loader[V]) load(ctx context.Context, key string, fn LoadFunc[V]) (V, error) {
	if l.opts.breaker != nil {
		return l.opts.breaker.Execute(func() (V, error) {
			return l.loadWithRetry(ctx, key, fn)
		})
	}
	return l.loadWithRetry(ctx, key, fn)
}

// loadWithRetry 按重试配置执行加载。
// panic 归一出的 ErrLoadPanic 不参与重试。
func (l *Loader[V]) loadWithRetry(ctx context.Context, key string, fn LoadFunc[V]) (V, error) {
	if l.opts.retryAttempts <= 1 {
		return safeLoad(ctx, fn)
	}
	return retry.NewWithData[V](
		retry.Context(ctx),
		retry.Attempts(l.opts.retryAttempts),
		retry.Delay(l.opts.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrLoadPanic)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			// retry-go v5 的 attempt 从 0 开始，转为 1-based 记录
			l.logWarn("load attempt failed, retrying", "key", key, "attempt", attempt+1, "error", err)
		}),
	).Do(func() (V, error) {
		return safeLoad(ctx, fn)
	})
}

// safeLoad 执行加载函数并把 panic 归一为 ErrLoadPanic。
func safeLoad[V any](ctx context.Context, fn LoadFunc[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
		}
	}()
	return fn(ctx)
}

// independentTimeout 返回脱离调用方取消链、带独立超时的 context。
// 原 context 携带的值（trace 信息等）被保留。
//   - timeout == 0: 不设置超时
//   - timeout < 0: 使用 [RecommendedLoadTimeout]
func independentTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout == 0 {
		return context.WithCancel(detached)
	}
	if timeout < 0 {
		timeout = RecommendedLoadTimeout
	}
	return context.WithTimeout(detached, timeout)
}

// logWarn 记录 warn 日志。logger 为 nil 时禁用。
func (l *Loader[V]) logWarn(msg string, args ...any) {
	if l.opts.logger != nil {
		l.opts.logger.Warn(msg, args...)
	}
}
