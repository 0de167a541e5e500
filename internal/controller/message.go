package controller

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/asset-gate/asset-gate/internal/cache"
	"github.com/asset-gate/asset-gate/internal/config"
	"github.com/asset-gate/asset-gate/internal/logging"
)

// 页面侧带外命令。
const (
	// CommandSkipWaiting 强制处于等待期的控制器立即激活。
	CommandSkipWaiting = "SKIP_WAITING"
	// CommandCacheVideo 主动预热媒体分区（抓取全部 MediaAssets）。
	CommandCacheVideo = "CACHE_VIDEO"
)

// Command 是消息通道上收到的单条指令。
type Command struct {
	Type string `json:"type"`
}

// Reply 按约定回传 {success:true} 或 {success:false,error:...}。
type Reply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HandleMessage 处理带外命令并构造应答。未知命令不视为致命错误，
// 只在应答里说明。
func (c *Controller) HandleMessage(ctx context.Context, cmd Command) Reply {
	switch cmd.Type {
	case CommandSkipWaiting:
		return c.handleSkipWaiting(ctx)
	case CommandCacheVideo:
		return c.handleWarmMedia(ctx)
	default:
		return Reply{Success: false, Error: fmt.Sprintf("unknown command: %s", cmd.Type)}
	}
}

func (c *Controller) handleSkipWaiting(ctx context.Context) Reply {
	if c.Phase() == PhaseActive {
		return Reply{Success: true}
	}
	if err := c.Activate(ctx); err != nil {
		return Reply{Success: false, Error: err.Error()}
	}
	return Reply{Success: true}
}

// handleWarmMedia 把 MediaAssets 全量抓取进当前世代的媒体分区。
// 重复预热只是覆盖同一批条目，结果与执行一次相同。
func (c *Controller) handleWarmMedia(ctx context.Context) Reply {
	partition := config.MediaPartitionName(c.generation())

	for _, asset := range c.site.MediaAssets {
		target := c.origin.ResolveReference(&url.URL{Path: asset})
		result, err := c.fetcher.Fetch(ctx, target, nil)
		if err != nil {
			return Reply{Success: false, Error: fmt.Sprintf("fetch %s: %v", asset, err)}
		}
		if result.Status != http.StatusOK {
			return Reply{Success: false, Error: fmt.Sprintf("fetch %s: unexpected status %d", asset, result.Status)}
		}

		locator := cache.Locator{Partition: partition, Path: normalizePath(asset)}
		_, err = c.store.Put(ctx, locator, cache.Response{
			Status:   result.Status,
			Header:   result.Header,
			Body:     result.Body,
			StoredAt: result.FetchedAt,
		})
		if err != nil {
			return Reply{Success: false, Error: fmt.Sprintf("store %s: %v", asset, err)}
		}
	}

	fields := logging.LifecycleFields("warm_media", c.site.CacheVersion)
	fields["assets"] = len(c.site.MediaAssets)
	c.logger.WithFields(fields).Info("media_warm_complete")
	return Reply{Success: true}
}
