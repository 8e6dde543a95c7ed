// Package rescache 提供带 TTL 过期与 LRU 淘汰的泛型资源缓存。
//
// # 核心组件
//
//   - Cache：线程安全的进程内缓存，逐条目 TTL + 容量满载时 LRU 淘汰
//   - Loader：回源加载器，内置 singleflight 合并、重试与熔断
//   - SettingsWatcher：设置文件热更新（koanf + fsnotify）
//   - AutoSaver：按 cron 计划周期性写出 JSON 快照
//   - RegisterMetrics：把命中统计注册为 OTel 异步指标
//
// # 并发模型
//
// 所有方法并发安全。条目存储、过期记录与最近使用链表由同一把读写锁
// 保护，三个结构始终同步更新。命中统计使用原子计数器，读取不会阻塞
// 任何操作。
//
// 插入/移除回调在锁释放后执行，因此可以在回调中安全地调用缓存自身
// 的方法；回调 panic 会被捕获并记录日志。
//
// # 过期语义
//
// 过期判定是惰性的：条目到期后不会立即消失，而是在下一次 Get 触达
// 或清扫循环运行时被移除。Contains 与 Size 不做过期检查，因此可能
// 观察到已过期但尚未清扫的条目。
//
// # 后台清扫
//
// New 启动一个清扫 goroutine，按 1s/3s/5s 三档自适应间隔移除过期
// 条目：本轮过期密度高于 30% 时收紧到 1s，低于 10% 时放宽到 5s。
// 使用完毕必须调用 Close，否则清扫 goroutine 会泄漏。
//
// # 快速开始
//
//	cache, err := rescache.New[string](rescache.Config{MaxSize: 1000})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cache.Close()
//
//	cache.Insert("greeting", "hello", time.Minute)
//	if v, ok := cache.Get("greeting"); ok {
//		fmt.Println(v)
//	}
//
// 详细使用示例参考 example_test.go。
package rescache
