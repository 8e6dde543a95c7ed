package rescache

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// maxSizeLimit 缓存容量上限。
const maxSizeLimit = 1 << 24 // 16,777,216

// Config 定义缓存配置。
type Config struct {
	// MaxSize 缓存最大条目数。
	// 必须大于 0 且不超过 16,777,216。
	MaxSize int
}

// entry 缓存条目。替换时值与插入时间戳整体覆盖。
type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// pendingCall 在锁内捕获、锁释放后执行的回调。
type pendingCall struct {
	fn  func(key string)
	key string
}

// Cache 是带 TTL 过期与 LRU 淘汰的资源缓存。
// 必须通过 [New] 创建，零值不可用（方法调用会 panic）。
// 所有方法都是并发安全的。
// 调用 Close 后，读操作返回零值/false，写操作静默忽略。
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*list.Element // key → recency 链表节点
	ttls    map[string]time.Duration // key → 过期时长
	recency *list.List               // 最近使用在队首，淘汰从队尾取
	maxSize int

	onInsert func(key string) // mu 保护
	onRemove func(key string) // mu 保护

	hits   atomic.Uint64
	misses atomic.Uint64

	asyncTTL atomic.Int64 // AsyncLoad 条目 TTL（纳秒），运行期可调

	logger *slog.Logger
	copier func(V) V

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New 创建资源缓存并启动后台清扫循环。
// 如果 cfg.MaxSize <= 0，返回 ErrInvalidMaxSize。
// 如果 cfg.MaxSize > 16,777,216，返回 ErrMaxSizeExceedsLimit。
// 使用完毕必须调用 Close，否则清扫 goroutine 会泄漏。
func New[V any](cfg Config, opts ...Option[V]) (*Cache[V], error) {
	if cfg.MaxSize <= 0 {
		return nil, ErrInvalidMaxSize
	}
	if cfg.MaxSize > maxSizeLimit {
		return nil, ErrMaxSizeExceedsLimit
	}

	// 应用可选配置
	o := defaultOptions[V]()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	c := &Cache[V]{
		entries:  make(map[string]*list.Element),
		ttls:     make(map[string]time.Duration),
		recency:  list.New(),
		maxSize:  cfg.MaxSize,
		onInsert: o.onInsert,
		onRemove: o.onRemove,
		logger:   o.logger,
		copier:   o.copier,
		stopCh:   make(chan struct{}),
	}
	c.asyncTTL.Store(int64(o.asyncLoadTTL))

	c.wg.Add(1)
	go c.maintenanceLoop()

	return c, nil
}

// Insert 插入或替换条目，并把条目提升为最近使用。
// ttl 从本次插入时刻起算，ttl <= 0 的条目立即视为过期。
//
// 注意：容量判断发生在替换检查之前。缓存满载时总是先淘汰队尾条目，
// 即使本次插入的 key 已存在。淘汰后仍无空位时放弃插入并记录告警。
func (c *Cache[V]) Insert(key string, value V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	now := time.Now()

	c.mu.Lock()
	calls, ok := c.insertLocked(key, value, ttl, now, nil)
	c.mu.Unlock()

	if !ok {
		c.logWarn("cache still full after eviction attempt", "key", key)
	}
	c.fire(calls)
}

// Get 获取缓存值并把条目提升为最近使用。
// 命中计入 Hits；键不存在或已过期计入 Misses。
// 已过期的条目在读取时同步移除，随后触发移除回调。
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	now := time.Now()

	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return zero, false
	}
	if c.isExpiredLocked(key, now) {
		calls, _ := c.removeLocked(key, nil)
		c.mu.Unlock()
		c.misses.Add(1)
		c.fire(calls)
		return zero, false
	}
	c.recency.MoveToFront(elem)
	v := elem.Value.(*entry[V]).value
	c.mu.Unlock()

	c.hits.Add(1)
	return c.safeCopy(key, v)
}

// Contains 检查键是否存在。
// 不做过期检查、不更新最近使用位置、不影响统计计数，
// 因此对已过期但尚未清扫的键仍返回 true。
func (c *Cache[V]) Contains(key string) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.RLock()
	_, ok := c.entries[key]
	c.mu.RUnlock()
	return ok
}

// Remove 移除指定条目并触发移除回调。键不存在时为 no-op。
func (c *Cache[V]) Remove(key string) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	calls, _ := c.removeLocked(key, nil)
	c.mu.Unlock()
	c.fire(calls)
}

// IsExpired 检查条目是否过期。
// 没有过期记录的键返回 false，包括不存在的键。
func (c *Cache[V]) IsExpired(key string) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isExpiredLocked(key, time.Now())
}

// EvictOldest 淘汰最久未使用的条目并触发移除回调。空缓存为 no-op。
func (c *Cache[V]) EvictOldest() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	calls, _ := c.evictLocked(nil)
	c.mu.Unlock()
	c.fire(calls)
}

// SetMaxSize 调整缓存容量。
// 新容量小于当前条目数时，按最久未使用顺序淘汰直至满足上限。
// 非法值（<= 0 或超过上限）记录告警并忽略，当前容量保持不变。
func (c *Cache[V]) SetMaxSize(n int) {
	if c.closed.Load() {
		return
	}
	if n <= 0 || n > maxSizeLimit {
		c.logWarn("attempted to set invalid cache max size", "max_size", n)
		return
	}

	c.mu.Lock()
	c.maxSize = n
	var calls []pendingCall
	for len(c.entries) > c.maxSize {
		var ok bool
		calls, ok = c.evictLocked(calls)
		if !ok {
			break
		}
	}
	c.mu.Unlock()
	c.fire(calls)
}

// SetExpirationTime 更新已存在条目的过期时长。
// 过期判定仍以原插入时刻为基准；键不存在时为 no-op。
func (c *Cache[V]) SetExpirationTime(key string, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.ttls[key] = ttl
	}
	c.mu.Unlock()
}

// Size 返回当前条目数。
// 注意：返回值可能包含已过期但尚未清扫的条目。
func (c *Cache[V]) Size() int {
	if c.closed.Load() {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Empty 报告缓存是否为空。
func (c *Cache[V]) Empty() bool {
	if c.closed.Load() {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries) == 0
}

// Clear 清空所有条目并重置统计计数。
// 不触发逐条移除回调；已注册的回调保持有效。
func (c *Cache[V]) Clear() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.ttls = make(map[string]time.Duration)
	c.recency.Init()
	c.hits.Store(0)
	c.misses.Store(0)
	c.mu.Unlock()
}

// OnInsert 注册插入回调，替换之前注册的回调。传入 nil 取消注册。
// 回调在锁释放后执行，可以安全地调用缓存自身的方法。
func (c *Cache[V]) OnInsert(fn func(key string)) {
	c.mu.Lock()
	c.onInsert = fn
	c.mu.Unlock()
}

// OnRemove 注册移除回调，替换之前注册的回调。传入 nil 取消注册。
// 显式移除、容量淘汰与过期清扫均会触发；Clear 不触发。
// 回调在锁释放后执行，可以安全地调用缓存自身的方法。
func (c *Cache[V]) OnRemove(fn func(key string)) {
	c.mu.Lock()
	c.onRemove = fn
	c.mu.Unlock()
}

// Close 停止后台清扫循环并释放缓存内容。幂等，可安全并发调用。
// 关闭后读操作返回零值/false，写操作静默忽略。
func (c *Cache[V]) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.ttls = make(map[string]time.Duration)
	c.recency.Init()
	c.mu.Unlock()
}

// ==================== 内部实现 ====================

// insertLocked 在持锁状态下执行插入或替换。
// 满载时先淘汰队尾条目；淘汰后仍无空位返回 ok=false 且不做任何修改。
// 返回值携带锁释放后待执行的回调。
func (c *Cache[V]) insertLocked(key string, value V, ttl time.Duration, now time.Time, calls []pendingCall) (_ []pendingCall, ok bool) {
	if len(c.entries) >= c.maxSize {
		calls, _ = c.evictLocked(calls)
	}
	if len(c.entries) >= c.maxSize {
		return calls, false
	}

	if elem, exists := c.entries[key]; exists {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.insertedAt = now
		c.recency.MoveToFront(elem)
	} else {
		c.entries[key] = c.recency.PushFront(&entry[V]{key: key, value: value, insertedAt: now})
	}
	c.ttls[key] = ttl

	if c.onInsert != nil {
		calls = append(calls, pendingCall{fn: c.onInsert, key: key})
	}
	return calls, true
}

// evictLocked 移除 recency 队尾条目。空缓存返回 ok=false。
func (c *Cache[V]) evictLocked(calls []pendingCall) (_ []pendingCall, ok bool) {
	elem := c.recency.Back()
	if elem == nil {
		return calls, false
	}
	key := elem.Value.(*entry[V]).key
	c.recency.Remove(elem)
	delete(c.entries, key)
	delete(c.ttls, key)
	c.logInfo("evicted key", "key", key)
	if c.onRemove != nil {
		calls = append(calls, pendingCall{fn: c.onRemove, key: key})
	}
	return calls, true
}

// removeLocked 移除指定键。键不存在返回 ok=false。
func (c *Cache[V]) removeLocked(key string, calls []pendingCall) (_ []pendingCall, ok bool) {
	elem, exists := c.entries[key]
	if !exists {
		return calls, false
	}
	c.recency.Remove(elem)
	delete(c.entries, key)
	delete(c.ttls, key)
	if c.onRemove != nil {
		calls = append(calls, pendingCall{fn: c.onRemove, key: key})
	}
	return calls, true
}

// isExpiredLocked 判断键是否过期。
// 没有过期记录视为不过期；有记录但条目缺失说明内部状态不一致，
// 记录错误日志并按已过期处理。
func (c *Cache[V]) isExpiredLocked(key string, now time.Time) bool {
	ttl, ok := c.ttls[key]
	if !ok {
		return false
	}
	elem, ok := c.entries[key]
	if !ok {
		c.logError("expiration record without cache entry", "key", key)
		return true
	}
	return now.Sub(elem.Value.(*entry[V]).insertedAt) >= ttl
}

// fire 在锁外执行收集到的回调。
func (c *Cache[V]) fire(calls []pendingCall) {
	for _, call := range calls {
		c.invoke(call)
	}
}

// invoke 执行单个回调。回调 panic 会被捕获并记录，不影响缓存状态。
func (c *Cache[V]) invoke(call pendingCall) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("cache callback panicked", "key", call.key, "panic", r)
		}
	}()
	call.fn(call.key)
}

// safeCopy 应用值拷贝函数。拷贝函数 panic 时记录日志并按未命中处理。
func (c *Cache[V]) safeCopy(key string, v V) (out V, ok bool) {
	if c.copier == nil {
		return v, true
	}
	defer func() {
		if r := recover(); r != nil {
			c.logError("value copier panicked", "key", key, "panic", r)
			ok = false
		}
	}()
	return c.copier(v), true
}

// logInfo 记录 info 日志。logger 为 nil 时禁用。
func (c *Cache[V]) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

// logWarn 记录 warn 日志。logger 为 nil 时禁用。
func (c *Cache[V]) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

// logError 记录 error 日志。logger 为 nil 时禁用。
func (c *Cache[V]) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
