package rescache

import (
	"log/slog"
	"time"
)

// DefaultAsyncLoadTTL AsyncLoad 写入条目的默认过期时间。
const DefaultAsyncLoadTTL = 60 * time.Second

// Option 定义缓存可选配置函数类型。
type Option[V any] func(*options[V])

// options 内部可选配置。
type options[V any] struct {
	logger       *slog.Logger
	onInsert     func(key string)
	onRemove     func(key string)
	copier       func(V) V
	asyncLoadTTL time.Duration
}

// defaultOptions 返回默认配置。
func defaultOptions[V any]() *options[V] {
	return &options[V]{
		logger:       slog.Default(),
		asyncLoadTTL: DefaultAsyncLoadTTL,
	}
}

// WithLogger 设置日志记录器。
// 传入 nil 将禁用日志输出。默认使用 slog.Default()。
func WithLogger[V any](logger *slog.Logger) Option[V] {
	return func(o *options[V]) {
		o.logger = logger
	}
}

// WithOnInsert 设置插入回调，等价于构造后调用 [Cache.OnInsert]。
func WithOnInsert[V any](fn func(key string)) Option[V] {
	return func(o *options[V]) {
		o.onInsert = fn
	}
}

// WithOnRemove 设置移除回调，等价于构造后调用 [Cache.OnRemove]。
func WithOnRemove[V any](fn func(key string)) Option[V] {
	return func(o *options[V]) {
		o.onRemove = fn
	}
}

// WithValueCopier 设置值拷贝函数，Get 返回前对值执行拷贝。
//
// 注意：对于含指针、切片或 map 的值类型，不设置拷贝函数时调用方
// 会与缓存共享底层数据，并发修改会产生数据竞争。拷贝函数在锁外
// 执行，panic 会被捕获并按未命中处理。
func WithValueCopier[V any](fn func(V) V) Option[V] {
	return func(o *options[V]) {
		o.copier = fn
	}
}

// WithAsyncLoadTTL 设置 AsyncLoad 写入条目的过期时间。
// 非正值将被忽略，保留默认值 [DefaultAsyncLoadTTL]。
func WithAsyncLoadTTL[V any](d time.Duration) Option[V] {
	return func(o *options[V]) {
		if d > 0 {
			o.asyncLoadTTL = d
		}
	}
}
