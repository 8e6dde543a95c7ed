package rescache

import (
	"fmt"
	"time"
)

// GetResult 异步读取结果。
type GetResult[V any] struct {
	Value V
	OK    bool
}

// AsyncGet 在后台 goroutine 中执行 Get。
// 返回缓冲为 1 的结果通道，发送后立即关闭。调用方可以随时放弃接收，
// 不会造成 goroutine 泄漏。
func (c *Cache[V]) AsyncGet(key string) <-chan GetResult[V] {
	ch := make(chan GetResult[V], 1)
	go func() {
		defer close(ch)
		v, ok := c.Get(key)
		ch <- GetResult[V]{Value: v, OK: ok}
	}()
	return ch
}

// AsyncInsert 在后台 goroutine 中执行 Insert。
// 返回的通道在插入完成后关闭。
func (c *Cache[V]) AsyncInsert(key string, value V, ttl time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Insert(key, value, ttl)
	}()
	return done
}

// AsyncLoad 在后台 goroutine 中执行 producer 并把结果写入缓存。
// producer 在缓存锁外执行，耗时加载不会阻塞其他操作。
// 写入使用专属 TTL，默认 [DefaultAsyncLoadTTL]，可通过 [WithAsyncLoadTTL]
// 或 [Cache.ApplySettings] 调整。
//
// producer 返回错误或 panic 时仅记录日志、不写入缓存；返回的通道在
// 流程结束后关闭，通道本身不携带成败信息。
func (c *Cache[V]) AsyncLoad(key string, producer func() (V, error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := runProducer(producer)
		if err != nil {
			c.logError("async load failed", "key", key, "error", err)
			return
		}
		c.Insert(key, v, c.asyncLoadTTL())
	}()
	return done
}

// runProducer 执行生产者函数并把 panic 归一为错误。
func runProducer[V any](producer func() (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
		}
	}()
	if producer == nil {
		return v, ErrNilLoadFunc
	}
	return producer()
}

// asyncLoadTTL 返回当前 AsyncLoad 写入条目使用的 TTL。
func (c *Cache[V]) asyncLoadTTL() time.Duration {
	return time.Duration(c.asyncTTL.Load())
}
