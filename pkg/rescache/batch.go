package rescache

import "time"

// BatchItem 批量插入的单个条目。
type BatchItem[V any] struct {
	Key   string
	Value V
}

// InsertBatch 在单次锁获取内插入多个条目，全部条目共用同一 ttl。
// 单个条目的语义与 Insert 相同：满载时先淘汰队尾，淘汰后仍无空位的
// 条目被跳过并记录告警。回调在锁释放后按处理顺序触发。
func (c *Cache[V]) InsertBatch(items []BatchItem[V], ttl time.Duration) {
	if c.closed.Load() || len(items) == 0 {
		return
	}
	now := time.Now()

	c.mu.Lock()
	var calls []pendingCall
	for _, item := range items {
		var ok bool
		calls, ok = c.insertLocked(item.Key, item.Value, ttl, now, calls)
		if !ok {
			c.logWarn("cache full during batch insert", "key", item.Key)
		}
	}
	c.mu.Unlock()
	c.fire(calls)
}

// RemoveBatch 在单次锁获取内移除多个键。不存在的键被跳过。
// 回调在锁释放后按处理顺序触发。
func (c *Cache[V]) RemoveBatch(keys []string) {
	if c.closed.Load() || len(keys) == 0 {
		return
	}
	c.mu.Lock()
	var calls []pendingCall
	for _, key := range keys {
		calls, _ = c.removeLocked(key, calls)
	}
	c.mu.Unlock()
	c.fire(calls)
}

// RemoveExpired 立即移除所有已过期条目并触发移除回调。
// 后台清扫循环会周期性执行同样的清理，本方法用于按需即时清理。
func (c *Cache[V]) RemoveExpired() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	calls, _ := c.removeExpiredLocked(time.Now(), nil)
	c.mu.Unlock()
	c.fire(calls)
}
