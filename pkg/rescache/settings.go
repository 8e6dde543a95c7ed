package rescache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 设置文件格式。
type Format string

// 支持的设置文件格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Settings 缓存运行期可调参数。
// 零值字段表示「保持不变」，ApplySettings 会跳过。
type Settings struct {
	// MaxSize 缓存最大条目数。
	MaxSize int `koanf:"max_size"`

	// AsyncLoadTTL AsyncLoad 写入条目的过期时间。
	// 支持 "90s"、"5m" 等时长字符串。
	AsyncLoadTTL time.Duration `koanf:"async_load_ttl"`
}

// LoadSettings 从文件加载设置，按扩展名检测格式。
// 支持 .yaml/.yml/.json。
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return Settings{}, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return Settings{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("rescache: read settings: %w", err)
	}
	return ParseSettings(data, format)
}

// ParseSettings 从字节数据解析设置。
func ParseSettings(data []byte, format Format) (Settings, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Settings{}, fmt.Errorf("rescache: parse settings: %w", err)
	}
	var s Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Settings{}, fmt.Errorf("rescache: unmarshal settings: %w", err)
	}
	return s, nil
}

// detectFormat 根据文件扩展名检测格式。
func detectFormat(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ApplySettings 把设置应用到运行中的缓存。
// 零值字段保持现状；非法字段记录告警并跳过，不影响其他字段生效。
func (c *Cache[V]) ApplySettings(s Settings) {
	if c.closed.Load() {
		return
	}
	if s.MaxSize != 0 {
		c.SetMaxSize(s.MaxSize) // 非法值由 SetMaxSize 记录告警并忽略
	}
	switch {
	case s.AsyncLoadTTL > 0:
		c.asyncTTL.Store(int64(s.AsyncLoadTTL))
	case s.AsyncLoadTTL < 0:
		c.logWarn("attempted to set invalid async load ttl", "ttl", s.AsyncLoadTTL)
	}
}
