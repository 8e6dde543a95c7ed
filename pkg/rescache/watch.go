package rescache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SettingsCallback 设置变更回调函数。
// 重载成功时 err 为 nil 且 s 为已应用的新设置；
// 失败时 err 非 nil，缓存保持原状。
type SettingsCallback func(s Settings, err error)

// WatchOption 监视器可选配置函数类型。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
	callback SettingsCallback
}

func defaultWatchOptions() *watchOptions {
	return &watchOptions{
		debounce: 100 * time.Millisecond, // 默认防抖时间
	}
}

// WithDebounce 设置防抖时间，窗口内的多次变更只触发一次重载。
// 非正值将被忽略，保留默认值 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithSettingsCallback 设置变更通知回调。
func WithSettingsCallback(fn SettingsCallback) WatchOption {
	return func(o *watchOptions) {
		o.callback = fn
	}
}

// SettingsWatcher 监视设置文件变更并自动应用到缓存。
type SettingsWatcher[V any] struct {
	cache    *Cache[V]
	path     string
	watcher  *fsnotify.Watcher
	callback SettingsCallback
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stopped bool
	timer   *time.Timer // 防抖定时器，Stop 时需要取消
}

// WatchSettings 创建设置文件监视器。
// 文件变更后自动调用 LoadSettings 重载并通过 ApplySettings 应用到 cache。
//
// 注意:
//   - 监视的是文件所在目录而非文件本身，编辑器先删后建的保存方式不会丢失事件
//   - 返回的监视器需调用 Start 开始监视，Stop 停止并释放资源
func WatchSettings[V any](cache *Cache[V], path string, opts ...WatchOption) (*SettingsWatcher[V], error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	if path == "" {
		return nil, ErrEmptyPath
	}
	if _, err := detectFormat(path); err != nil {
		return nil, err
	}

	o := defaultWatchOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rescache: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		closeErr := fsWatcher.Close()
		return nil, errors.Join(
			fmt.Errorf("rescache: watch directory %s: %w", dir, err),
			closeErr,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SettingsWatcher[V]{
		cache:    cache,
		path:     path,
		watcher:  fsWatcher,
		callback: o.callback,
		debounce: o.debounce,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start 在后台 goroutine 中启动监视，立即返回。
// 幂等；已停止的监视器不能重新启动。
func (w *SettingsWatcher[V]) Start() {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run()
}

// Stop 停止监视并释放资源。幂等；未启动的监视器也需要调用以释放
// 底层文件监视资源。
func (w *SettingsWatcher[V]) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	w.running = false

	// 停止防抖定时器，防止 Stop 后仍触发重载
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	w.cancel()
	return w.watcher.Close()
}

// run 监视循环。
func (w *SettingsWatcher[V]) run() {
	filename := filepath.Base(w.path)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, filename)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.notify(Settings{}, fmt.Errorf("rescache: watch error: %w", err))
		}
	}
}

// handleEvent 处理文件系统事件，防抖后触发重载。
func (w *SettingsWatcher[V]) handleEvent(event fsnotify.Event, filename string) {
	// 只处理目标设置文件的事件
	if filepath.Base(event.Name) != filename {
		return
	}

	// Write: 直接修改；Create: 部分编辑器新建；Rename: 写临时文件后原子替换
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	// 防抖处理：重置计时器
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload 重载设置并应用到缓存。
func (w *SettingsWatcher[V]) reload() {
	// 检查监视器是否已停止
	select {
	case <-w.ctx.Done():
		return
	default:
	}

	s, err := LoadSettings(w.path)
	if err != nil {
		w.notify(Settings{}, err)
		return
	}
	w.cache.ApplySettings(s)
	w.notify(s, nil)
}

// notify 调用变更回调。回调 panic 被恢复并记录，监视不受影响。
func (w *SettingsWatcher[V]) notify(s Settings, err error) {
	if w.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.cache.logError("settings callback panicked", "panic", r)
		}
	}()
	w.callback(s, err)
}
