package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/asset-gate/asset-gate/internal/config"
)

// Store 负责管理缓存分区的读写与世代清理。每个分区是独立命名空间，
// 条目是一次成功响应（状态码 200）的不可变快照。
type Store interface {
	// Get 返回缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 写入响应快照并产出 Entry 描述。只接受 200 响应，
	// 其余状态码返回 ErrNotCacheable。
	Put(ctx context.Context, locator Locator, resp Response) (*Entry, error)

	// Remove 删除单个条目，条目不存在时不报错。
	Remove(ctx context.Context, locator Locator) error

	// Partitions 枚举当前存在的分区名。
	Partitions(ctx context.Context) ([]string, error)

	// DropPartition 整体删除一个分区及其全部条目。
	DropPartition(ctx context.Context, name string) error

	// Close 释放底层资源。
	Close() error
}

// Locator 唯一定位一个缓存条目（分区 + 规范化路径）。
type Locator struct {
	Partition string
	Path      string
}

// Response 是写入缓存的响应快照：状态、头部、正文一次性落盘，
// 读出后不可修改。
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Entry 描述一次写入或命中的元信息。
type Entry struct {
	Locator   Locator   `json:"locator"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
}

// ReadResult 组合 Entry 与响应快照，便于上层直接回放。
type ReadResult struct {
	Entry    Entry
	Response Response
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrNotCacheable 表示响应不满足入缓存条件（仅 200 可缓存）。
var ErrNotCacheable = errors.New("response not cacheable")

// NewStore 按配置选择存储后端，整个进程复用一份实例。
func NewStore(backend, basePath string) (Store, error) {
	switch backend {
	case config.BackendFS:
		return newFileStore(basePath)
	case config.BackendLevelDB:
		return newLevelStore(basePath)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// clone 深拷贝响应，避免调用方后续修改影响已入缓存的快照。
func (r Response) clone() Response {
	out := Response{
		Status:   r.Status,
		StoredAt: r.StoredAt,
		Header:   make(http.Header, len(r.Header)),
		Body:     append([]byte(nil), r.Body...),
	}
	for k, vs := range r.Header {
		out.Header[k] = append([]string(nil), vs...)
	}
	return out
}
