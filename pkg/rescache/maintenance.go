package rescache

import "time"

// 自适应清扫间隔参数。
const (
	sweepIntervalMin = 1 * time.Second
	sweepIntervalMid = 3 * time.Second
	sweepIntervalMax = 5 * time.Second

	// 过期密度阈值。高于 densityHigh 收紧清扫，低于 densityLow 放宽清扫。
	densityHigh = 0.3
	densityLow  = 0.1
)

// nextSweepInterval 根据本轮清扫结果计算下一轮清扫间隔。
// 过期密度 = expired / (remaining + expired)。
// 密度高于 0.3 返回 1s，低于 0.1 返回 5s，其余返回 3s。
// 清扫后缓存为空时直接返回 5s。
func nextSweepInterval(expired, remaining int) time.Duration {
	if remaining <= 0 {
		return sweepIntervalMax
	}
	density := float64(expired) / float64(remaining+expired)
	switch {
	case density > densityHigh:
		return sweepIntervalMin
	case density < densityLow:
		return sweepIntervalMax
	default:
		return sweepIntervalMid
	}
}

// maintenanceLoop 后台清扫循环。
// 每轮休眠后移除全部过期条目，并按过期密度自适应调整下一轮间隔。
// Close 关闭 stopCh 后退出。
func (c *Cache[V]) maintenanceLoop() {
	defer c.wg.Done()

	timer := time.NewTimer(sweepIntervalMin)
	defer timer.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-timer.C:
		}

		c.mu.Lock()
		calls, expired := c.removeExpiredLocked(time.Now(), nil)
		remaining := len(c.entries)
		c.mu.Unlock()
		c.fire(calls)

		timer.Reset(nextSweepInterval(expired, remaining))
	}
}

// removeExpiredLocked 收集并移除所有已过期的键，返回移除数量。
func (c *Cache[V]) removeExpiredLocked(now time.Time, calls []pendingCall) ([]pendingCall, int) {
	var expired []string
	for key := range c.entries {
		if c.isExpiredLocked(key, now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		calls, _ = c.removeLocked(key, calls)
		c.logInfo("removed expired key", "key", key)
	}
	return calls, len(expired)
}
