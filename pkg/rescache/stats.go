package rescache

// Statistics 缓存命中统计快照。
type Statistics struct {
	// Hits 累计命中次数。
	Hits uint64

	// Misses 累计未命中次数。
	Misses uint64
}

// Stats 返回当前统计快照。
// 计数基于原子变量，读取不会阻塞任何读写操作。
// 计数单调递增，仅 Clear 会重置。
func (c *Cache[V]) Stats() Statistics {
	return Statistics{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
