package rescache

import "errors"

// ==================== 配置错误 ====================

var (
	// ErrInvalidMaxSize 表示缓存容量配置无效。
	ErrInvalidMaxSize = errors.New("rescache: max size must be greater than 0")

	// ErrMaxSizeExceedsLimit 表示缓存容量超过上限。
	ErrMaxSizeExceedsLimit = errors.New("rescache: max size must not exceed 16777216")

	// ErrCacheClosed 表示缓存已关闭。
	ErrCacheClosed = errors.New("rescache: cache is closed")

	// ErrNilCache 表示缓存实例为 nil。
	ErrNilCache = errors.New("rescache: cache must not be nil")
)

// ==================== 加载错误 ====================

var (
	// ErrNilLoadFunc 表示加载函数为 nil。
	ErrNilLoadFunc = errors.New("rescache: load function must not be nil")

	// ErrLoadPanic 表示加载函数发生 panic。
	// 该错误不参与重试。
	ErrLoadPanic = errors.New("rescache: load function panicked")
)

// ==================== 持久化与设置错误 ====================

var (
	// ErrNilSerializer 表示序列化函数为 nil。
	ErrNilSerializer = errors.New("rescache: serialize function must not be nil")

	// ErrNilDeserializer 表示反序列化函数为 nil。
	ErrNilDeserializer = errors.New("rescache: deserialize function must not be nil")

	// ErrSnapshotParse 表示快照文件内容无法解析。
	ErrSnapshotParse = errors.New("rescache: snapshot parse failed")

	// ErrEmptyPath 表示文件路径为空。
	ErrEmptyPath = errors.New("rescache: path must not be empty")

	// ErrUnsupportedFormat 表示设置文件格式不受支持。
	ErrUnsupportedFormat = errors.New("rescache: unsupported settings format")
)
