package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Asset 上传后得到的远程标识：封面用 MediaID，正文用 URL
type Asset struct {
	MediaID string `json:"media_id"`
	URL     string `json:"url"`
}

// CacheStore 缓存的持久化方式，每次整体读写
type CacheStore interface {
	Load() (map[string]Asset, error)
	Save(entries map[string]Asset) error
	Close() error
}

// UploadCache 内容哈希 -> 远程标识，启动时整体加载，每次写入后整体保存
// 只支持单进程顺序使用
type UploadCache struct {
	store   CacheStore
	entries map[string]Asset
	log     logrus.FieldLogger
}

// NewUploadCache 加载缓存，读取失败视为空缓存
func NewUploadCache(store CacheStore, log logrus.FieldLogger) *UploadCache {
	entries, err := store.Load()
	if err != nil {
		log.WithError(err).Error("error loading cache, starting empty")
		entries = nil
	}
	if entries == nil {
		entries = map[string]Asset{}
	}
	return &UploadCache{store: store, entries: entries, log: log}
}

func (c *UploadCache) Get(hash string) (Asset, bool) {
	a, ok := c.entries[hash]
	return a, ok
}

// Set 写入并立即保存，保存失败只记录日志
func (c *UploadCache) Set(hash string, asset Asset) {
	c.entries[hash] = asset
	if err := c.store.Save(c.entries); err != nil {
		c.log.WithError(err).Error("error saving cache")
	}
}

func (c *UploadCache) Len() int {
	return len(c.entries)
}

func (c *UploadCache) Close() error {
	return c.store.Close()
}

// ContentHash 文件内容的 sha256
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileStore 以 JSON 文件保存缓存
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (map[string]Asset, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return map[string]Asset{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := map[string]Asset{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", s.Path, err)
	}
	return entries, nil
}

func (s *FileStore) Save(entries map[string]Asset) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, data, 0o644)
}

func (s *FileStore) Close() error { return nil }

// OpenCacheStore 根据配置选择缓存存储
func OpenCacheStore(driver, file, redisAddr string) (CacheStore, error) {
	switch driver {
	case "", "file":
		return NewFileStore(file), nil
	case "sqlite":
		store, err := NewSQLiteStore(file)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		return NewRedisStore(redisAddr), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}
