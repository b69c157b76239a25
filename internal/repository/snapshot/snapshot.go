package snapshot

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"e2e_messaging/internal/apperrors"
	redisservice "e2e_messaging/internal/service/redis"
	"e2e_messaging/internal/utils/fileutil"
)

type (
	// KV is a named-entry store for whole snapshots. Get returns nil, nil for a
	// missing entry.
	KV interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, value []byte) error
	}

	MemoryKV struct {
		mu      sync.RWMutex
		entries map[string][]byte
	}

	// FileKV writes each entry to <dir>/<key>.json.
	FileKV struct {
		dir string
	}

	RedisKV struct {
		redisService *redisservice.RedisService
		prefix       string
	}
)

var (
	_ KV = (*MemoryKV)(nil)
	_ KV = (*FileKV)(nil)
	_ KV = (*RedisKV)(nil)
)

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Keys lists the stored keys in order.
func (m *MemoryKV) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func NewFileKV(dir string) *FileKV {
	return &FileKV{dir: dir}
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, filepath.Base(key)+".json")
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	b, err := fileutil.ReadFile(f.path(key))
	if err != nil {
		return nil, apperrors.Persistence("read snapshot", err)
	}
	return b, nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	if err := fileutil.WriteFile(f.path(key), value, 0o600); err != nil {
		return apperrors.Persistence("write snapshot", err)
	}
	return nil
}

// NewRedisKV namespaces keys with prefix, typically the local user id.
func NewRedisKV(redisService *redisservice.RedisService, prefix string) *RedisKV {
	return &RedisKV{redisService: redisService, prefix: prefix}
}

func (r *RedisKV) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.redisService.GetBytes(ctx, r.key(key))
	if err != nil {
		return nil, apperrors.Persistence("read snapshot", err)
	}
	return b, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.redisService.Set(ctx, r.key(key), value, 0); err != nil {
		return apperrors.Persistence("write snapshot", err)
	}
	return nil
}
