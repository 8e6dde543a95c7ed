package rescache

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// AutoSaverOption 定义 AutoSaver 可选配置函数类型。
type AutoSaverOption func(*autoSaverOptions)

type autoSaverOptions struct {
	logger *slog.Logger
}

func defaultAutoSaverOptions() *autoSaverOptions {
	return &autoSaverOptions{logger: slog.Default()}
}

// WithAutoSaverLogger 设置日志记录器。传入 nil 禁用日志。
func WithAutoSaverLogger(logger *slog.Logger) AutoSaverOption {
	return func(o *autoSaverOptions) {
		o.logger = logger
	}
}

// AutoSaver 按 cron 计划周期性地把缓存快照写入 JSON 文件。
type AutoSaver[V any] struct {
	cache  *Cache[V]
	cron   *cron.Cron
	path   string
	toJSON ToJSONFunc[V]
	logger *slog.Logger

	saving atomic.Bool // 上一轮快照未完成时跳过本轮
}

// NewAutoSaver 创建定时快照器。
// spec 为 cron 表达式，支持可选的秒字段与 @every 描述符（如 "@every 30s"）。
// 创建后需调用 Start 启动，Stop 停止并等待进行中的快照完成。
func NewAutoSaver[V any](cache *Cache[V], path, spec string, toJSON ToJSONFunc[V], opts ...AutoSaverOption) (*AutoSaver[V], error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	if path == "" {
		return nil, ErrEmptyPath
	}
	if toJSON == nil {
		return nil, ErrNilSerializer
	}

	o := defaultAutoSaverOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	s := &AutoSaver[V]{
		cache:  cache,
		path:   path,
		toJSON: toJSON,
		logger: o.logger,
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	s.cron = cron.New(cron.WithParser(parser))
	if _, err := s.cron.AddFunc(spec, s.save); err != nil {
		return nil, fmt.Errorf("rescache: invalid autosave schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start 启动定时快照。幂等。
func (s *AutoSaver[V]) Start() {
	s.cron.Start()
}

// Stop 停止定时快照并等待进行中的快照完成。幂等。
func (s *AutoSaver[V]) Stop() {
	<-s.cron.Stop().Done()
}

// save 执行一轮快照。
func (s *AutoSaver[V]) save() {
	if !s.saving.CompareAndSwap(false, true) {
		if s.logger != nil {
			s.logger.Warn("autosave skipped, previous snapshot still running", "path", s.path)
		}
		return
	}
	defer s.saving.Store(false)

	if err := s.cache.WriteToJSONFile(s.path, s.toJSON); err != nil {
		if s.logger != nil {
			s.logger.Error("autosave failed", "path", s.path, "error", err)
		}
	}
}
