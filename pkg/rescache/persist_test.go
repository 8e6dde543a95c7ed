package rescache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 整数值的行格式编解码器，多数持久化测试共用。
func intSerializer(v int) (string, error)   { return strconv.Itoa(v), nil }
func intDeserializer(s string) (int, error) { return strconv.Atoi(s) }

func TestCache_WriteToFile_ReadFromFile_RoundTrip(t *testing.T) {
	// Given
	src := newTestCache[int](t, 10)
	src.Insert("alpha", 1, time.Minute)
	src.Insert("beta", 2, time.Minute)
	src.Insert("gamma", 3, time.Minute)

	path := filepath.Join(t.TempDir(), "snapshot.txt")

	// When
	require.NoError(t, src.WriteToFile(path, intSerializer))

	dst := newTestCache[int](t, 10)
	require.NoError(t, dst.ReadFromFile(path, intDeserializer))

	// Then
	require.Equal(t, 3, dst.Size())
	for key, want := range map[string]int{"alpha": 1, "beta": 2, "gamma": 3} {
		got, ok := dst.Get(key)
		require.True(t, ok, "key %s should be loaded", key)
		assert.Equal(t, want, got)
	}

	// 载入条目统一使用文件载入 TTL
	dst.mu.RLock()
	ttl := dst.ttls["alpha"]
	dst.mu.RUnlock()
	assert.Equal(t, FileLoadTTL, ttl)
}

func TestCache_ReadFromFile_ValueContainingColon(t *testing.T) {
	// Given: 值本身包含冒号，分隔符取第一个冒号
	src := newTestCache[string](t, 10)
	src.Insert("timestamp", "10:30:45", time.Minute)

	path := filepath.Join(t.TempDir(), "snapshot.txt")
	identity := func(s string) (string, error) { return s, nil }

	// When
	require.NoError(t, src.WriteToFile(path, identity))

	dst := newTestCache[string](t, 10)
	require.NoError(t, dst.ReadFromFile(path, identity))

	// Then
	got, ok := dst.Get("timestamp")
	require.True(t, ok)
	assert.Equal(t, "10:30:45", got)
}

func TestCache_WriteToFile_SkipsFailingEntries(t *testing.T) {
	// Given
	cache := newTestCache[int](t, 10)
	cache.Insert("good", 1, time.Minute)
	cache.Insert("bad", 2, time.Minute)
	cache.Insert("ugly", 3, time.Minute)

	serialize := func(v int) (string, error) {
		switch v {
		case 2:
			return "", errors.New("cannot serialize")
		case 3:
			panic("serializer boom")
		}
		return strconv.Itoa(v), nil
	}

	path := filepath.Join(t.TempDir(), "snapshot.txt")

	// When: 单条目失败（含 panic）不中断快照
	require.NoError(t, cache.WriteToFile(path, serialize))

	// Then
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "good:1")
	assert.NotContains(t, content, "bad")
	assert.NotContains(t, content, "ugly")
}

func TestCache_ReadFromFile_SkipsMalformedLines(t *testing.T) {
	// Given: 缺分隔符、空键、反序列化失败的行均被跳过
	path := filepath.Join(t.TempDir(), "snapshot.txt")
	content := strings.Join([]string{
		"valid:42",
		"no-separator-line",
		":value-without-key",
		"broken:not-a-number",
		"",
		"another:7",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cache := newTestCache[int](t, 10)

	// When
	require.NoError(t, cache.ReadFromFile(path, intDeserializer))

	// Then
	assert.Equal(t, 2, cache.Size())

	got, ok := cache.Get("valid")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	got, ok = cache.Get("another")
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestCache_ReadFromFile_WhenFileMissing_ReturnsError(t *testing.T) {
	cache := newTestCache[int](t, 10)

	err := cache.ReadFromFile(filepath.Join(t.TempDir(), "missing.txt"), intDeserializer)

	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCache_Persist_ArgumentValidation(t *testing.T) {
	cache := newTestCache[int](t, 10)
	path := filepath.Join(t.TempDir(), "snapshot.txt")

	toJSON := func(v int) (json.RawMessage, error) { return json.Marshal(v) }
	fromJSON := func(raw json.RawMessage) (int, error) {
		var v int
		return v, json.Unmarshal(raw, &v)
	}

	assert.ErrorIs(t, cache.WriteToFile(path, nil), ErrNilSerializer)
	assert.ErrorIs(t, cache.WriteToFile("", intSerializer), ErrEmptyPath)
	assert.ErrorIs(t, cache.ReadFromFile(path, nil), ErrNilDeserializer)
	assert.ErrorIs(t, cache.ReadFromFile("", intDeserializer), ErrEmptyPath)
	assert.ErrorIs(t, cache.WriteToJSONFile(path, nil), ErrNilSerializer)
	assert.ErrorIs(t, cache.WriteToJSONFile("", toJSON), ErrEmptyPath)
	assert.ErrorIs(t, cache.ReadFromJSONFile(path, nil), ErrNilDeserializer)
	assert.ErrorIs(t, cache.ReadFromJSONFile("", fromJSON), ErrEmptyPath)
}

func TestCache_Persist_AfterClose_ReturnsError(t *testing.T) {
	cache, err := New[int](Config{MaxSize: 10}, WithLogger[int](nil))
	require.NoError(t, err)
	cache.Close()

	path := filepath.Join(t.TempDir(), "snapshot.txt")
	toJSON := func(v int) (json.RawMessage, error) { return json.Marshal(v) }
	fromJSON := func(raw json.RawMessage) (int, error) {
		var v int
		return v, json.Unmarshal(raw, &v)
	}

	assert.ErrorIs(t, cache.WriteToFile(path, intSerializer), ErrCacheClosed)
	assert.ErrorIs(t, cache.ReadFromFile(path, intDeserializer), ErrCacheClosed)
	assert.ErrorIs(t, cache.WriteToJSONFile(path, toJSON), ErrCacheClosed)
	assert.ErrorIs(t, cache.ReadFromJSONFile(path, fromJSON), ErrCacheClosed)
}

func TestCache_WriteToJSONFile_ReadFromJSONFile_RoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	// Given
	src := newTestCache[payload](t, 10)
	src.Insert("first", payload{Name: "alpha", Count: 1}, time.Minute)
	src.Insert("second", payload{Name: "beta", Count: 2}, time.Minute)

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	toJSON := func(v payload) (json.RawMessage, error) { return json.Marshal(v) }
	fromJSON := func(raw json.RawMessage) (payload, error) {
		var v payload
		return v, json.Unmarshal(raw, &v)
	}

	// When
	require.NoError(t, src.WriteToJSONFile(path, toJSON))

	dst := newTestCache[payload](t, 10)
	require.NoError(t, dst.ReadFromJSONFile(path, fromJSON))

	// Then
	require.Equal(t, 2, dst.Size())

	got, ok := dst.Get("first")
	require.True(t, ok)
	assert.Equal(t, payload{Name: "alpha", Count: 1}, got)

	got, ok = dst.Get("second")
	require.True(t, ok)
	assert.Equal(t, payload{Name: "beta", Count: 2}, got)

	// 快照是合法 JSON，且没有遗留临时文件
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestCache_ReadFromJSONFile_WhenRootNotObject_ReturnsError(t *testing.T) {
	// Given
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 3]`), 0o600))

	cache := newTestCache[int](t, 10)
	fromJSON := func(raw json.RawMessage) (int, error) {
		var v int
		return v, json.Unmarshal(raw, &v)
	}

	// When
	err := cache.ReadFromJSONFile(path, fromJSON)

	// Then
	assert.ErrorIs(t, err, ErrSnapshotParse)
	assert.Equal(t, 0, cache.Size())
}

func TestCache_InsertSnapshot_RespectsCapacity(t *testing.T) {
	// Given: 容量 2，快照含 3 条
	path := filepath.Join(t.TempDir(), "snapshot.txt")
	content := "a:1\nb:2\nc:3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cache := newTestCache[int](t, 2)

	// When
	require.NoError(t, cache.ReadFromFile(path, intDeserializer))

	// Then: 逐条插入语义，超出容量按 LRU 滚动淘汰
	assert.Equal(t, 2, cache.Size())
	checkIntegrity(t, cache)
}
