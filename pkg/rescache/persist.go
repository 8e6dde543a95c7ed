package rescache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileLoadTTL 从快照文件载入的条目统一使用的过期时间。
const FileLoadTTL = time.Hour

// SerializeFunc 把值编码为单行文本。
// 输出不能包含换行符，否则快照无法按行还原。
type SerializeFunc[V any] func(V) (string, error)

// DeserializeFunc 把单行文本解码为值。
type DeserializeFunc[V any] func(string) (V, error)

// ToJSONFunc 把值编码为 JSON。
type ToJSONFunc[V any] func(V) (json.RawMessage, error)

// FromJSONFunc 把 JSON 解码为值。
type FromJSONFunc[V any] func(json.RawMessage) (V, error)

// WriteToFile 把缓存内容以「key:value」行格式写入文件。
// 序列化在共享锁内完成，保证快照是一致性视图；磁盘写入在锁外进行，
// 通过唯一命名的临时文件加原子重命名完成，读者不会看到半写状态。
// 单个条目序列化失败时记录日志并跳过，不中断整个快照。
func (c *Cache[V]) WriteToFile(path string, serialize SerializeFunc[V]) error {
	if serialize == nil {
		return ErrNilSerializer
	}
	if path == "" {
		return ErrEmptyPath
	}
	if c.closed.Load() {
		return ErrCacheClosed
	}

	var buf bytes.Buffer
	c.mu.RLock()
	for key, elem := range c.entries {
		line, err := runGuarded(func() (string, error) {
			return serialize(elem.Value.(*entry[V]).value)
		})
		if err != nil {
			c.logError("serialization failed", "key", key, "error", err)
			continue
		}
		buf.WriteString(key)
		buf.WriteByte(':')
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	c.mu.RUnlock()

	return writeFileAtomic(path, buf.Bytes())
}

// ReadFromFile 从「key:value」行格式文件载入条目。
// 文件读取与反序列化在锁外完成，随后所有条目在单次写锁内插入，
// 过期时间统一为 [FileLoadTTL]。没有冒号分隔符或键为空的行被跳过，
// 反序列化失败的行记录日志后跳过。
func (c *Cache[V]) ReadFromFile(path string, deserialize DeserializeFunc[V]) error {
	if deserialize == nil {
		return ErrNilDeserializer
	}
	if path == "" {
		return ErrEmptyPath
	}
	if c.closed.Load() {
		return ErrCacheClosed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rescache: read snapshot: %w", err)
	}

	var items []BatchItem[V]
	for line := range strings.SplitSeq(string(data), "\n") {
		key, raw, found := strings.Cut(line, ":")
		if !found || key == "" {
			continue
		}
		v, err := runGuarded(func() (V, error) {
			return deserialize(raw)
		})
		if err != nil {
			c.logError("deserialization failed", "key", key, "error", err)
			continue
		}
		items = append(items, BatchItem[V]{Key: key, Value: v})
	}

	c.insertSnapshot(items)
	return nil
}

// WriteToJSONFile 把缓存内容以 JSON 对象格式写入文件（键 → 序列化值）。
// 快照一致性、原子写入与单条目失败语义与 WriteToFile 相同。
func (c *Cache[V]) WriteToJSONFile(path string, toJSON ToJSONFunc[V]) error {
	if toJSON == nil {
		return ErrNilSerializer
	}
	if path == "" {
		return ErrEmptyPath
	}
	if c.closed.Load() {
		return ErrCacheClosed
	}

	snapshot := make(map[string]json.RawMessage)
	c.mu.RLock()
	for key, elem := range c.entries {
		raw, err := runGuarded(func() (json.RawMessage, error) {
			return toJSON(elem.Value.(*entry[V]).value)
		})
		if err != nil {
			c.logError("serialization failed", "key", key, "error", err)
			continue
		}
		snapshot[key] = raw
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return fmt.Errorf("rescache: encode snapshot: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// ReadFromJSONFile 从 JSON 对象格式文件载入条目。
// 根节点必须是 JSON 对象，否则返回 ErrSnapshotParse。
// 插入语义与 ReadFromFile 相同。
func (c *Cache[V]) ReadFromJSONFile(path string, fromJSON FromJSONFunc[V]) error {
	if fromJSON == nil {
		return ErrNilDeserializer
	}
	if path == "" {
		return ErrEmptyPath
	}
	if c.closed.Load() {
		return ErrCacheClosed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rescache: read snapshot: %w", err)
	}
	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotParse, err)
	}

	items := make([]BatchItem[V], 0, len(snapshot))
	for key, raw := range snapshot {
		v, err := runGuarded(func() (V, error) {
			return fromJSON(raw)
		})
		if err != nil {
			c.logError("deserialization failed", "key", key, "error", err)
			continue
		}
		items = append(items, BatchItem[V]{Key: key, Value: v})
	}

	c.insertSnapshot(items)
	return nil
}

// insertSnapshot 在单次写锁内插入快照条目，过期时间统一为 FileLoadTTL。
func (c *Cache[V]) insertSnapshot(items []BatchItem[V]) {
	if len(items) == 0 {
		return
	}
	now := time.Now()

	c.mu.Lock()
	var calls []pendingCall
	for _, item := range items {
		var ok bool
		calls, ok = c.insertLocked(item.Key, item.Value, FileLoadTTL, now, calls)
		if !ok {
			c.logWarn("cache full, could not insert key from file", "key", item.Key)
		}
	}
	c.mu.Unlock()
	c.fire(calls)
}

// runGuarded 执行用户提供的编解码函数并把 panic 归一为错误。
func runGuarded[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rescache: user function panicked: %v", r)
		}
	}()
	return fn()
}

// writeFileAtomic 先写入唯一命名的临时文件再原子重命名。
// 临时文件与目标文件同目录，保证 rename 不跨文件系统。
func writeFileAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("rescache: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rescache: replace snapshot: %w", err)
	}
	return nil
}
