package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/asset-gate/asset-gate/internal/cache"
	"github.com/asset-gate/asset-gate/internal/config"
)

// Resolution 是一次请求解析的结果，供宿主层回放给客户端。
type Resolution struct {
	Class     Class
	Partition string
	CacheHit  bool
	Fallback  bool // 网络失败后以离线文档顶替
	Response  cache.Response
}

// Resolve 对单个出站请求执行缓存优先解析。
//
// 媒体资产：命中即返回（长期不可变资产，不做新鲜度校验）；未命中则
// 回源，200 先落盘再返回，传输失败直接向调用方传播，没有回退。
//
// 通用资产：命中即返回；未命中回源，200 且同源时异步落盘（不阻塞
// 返回，也不随调用方取消而中断），跨源响应只透传不缓存；传输彻底
// 失败时，文档导航以缓存中的离线文档顶替，其余请求传播失败。
func (c *Controller) Resolve(ctx context.Context, req AssetRequest) (*Resolution, error) {
	gen := c.generation()
	class := c.Classify(req.URL)
	key := c.cacheKey(req.URL)

	if class == ClassMedia {
		return c.resolveMedia(ctx, req, gen, key)
	}
	return c.resolveGeneral(ctx, req, gen, key)
}

func (c *Controller) resolveMedia(ctx context.Context, req AssetRequest, gen, key string) (*Resolution, error) {
	locator := cache.Locator{Partition: config.MediaPartitionName(gen), Path: key}

	if cached := c.lookup(ctx, locator); cached != nil {
		return &Resolution{Class: ClassMedia, Partition: locator.Partition, CacheHit: true, Response: cached.Response}, nil
	}

	result, err := c.fetcher.Fetch(ctx, req.URL, req.Header)
	if err != nil {
		return nil, fmt.Errorf("media fetch %s: %w", req.URL, err)
	}

	resp := cache.Response{
		Status:   result.Status,
		Header:   result.Header,
		Body:     result.Body,
		StoredAt: result.FetchedAt,
	}
	if result.Status == http.StatusOK {
		// 先落盘再返回，保证入缓存的是未被消费的完整副本。
		if _, err := c.store.Put(ctx, locator, resp); err != nil {
			c.logStoreFailure(locator, err)
		}
	}
	return &Resolution{Class: ClassMedia, Partition: locator.Partition, Response: resp}, nil
}

func (c *Controller) resolveGeneral(ctx context.Context, req AssetRequest, gen, key string) (*Resolution, error) {
	locator := cache.Locator{Partition: config.GeneralPartitionName(gen), Path: key}

	if cached := c.lookup(ctx, locator); cached != nil {
		return &Resolution{Class: ClassGeneral, Partition: locator.Partition, CacheHit: true, Response: cached.Response}, nil
	}

	result, err := c.fetcher.Fetch(ctx, req.URL, req.Header)
	if err != nil {
		if req.Navigation {
			if fallback := c.offlineFallback(ctx, gen); fallback != nil {
				return fallback, nil
			}
		}
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	resp := cache.Response{
		Status:   result.Status,
		Header:   result.Header,
		Body:     result.Body,
		StoredAt: result.FetchedAt,
	}
	if result.Status == http.StatusOK && c.sameOrigin(req.URL) {
		c.storeAsync(ctx, locator, resp)
	}
	return &Resolution{Class: ClassGeneral, Partition: locator.Partition, Response: resp}, nil
}

// lookup 查询缓存；存储层故障降级为未命中并记录日志。
func (c *Controller) lookup(ctx context.Context, locator cache.Locator) *cache.ReadResult {
	result, err := c.store.Get(ctx, locator)
	if err == nil {
		return result
	}
	if !errors.Is(err, cache.ErrNotFound) {
		c.logger.WithError(err).WithField("partition", locator.Partition).Warn("cache_get_failed")
	}
	return nil
}

// offlineFallback 在文档导航断网时返回缓存的离线文档；文档不在
// 缓存中时返回 nil，由调用方按硬失败处理。
func (c *Controller) offlineFallback(ctx context.Context, gen string) *Resolution {
	locator := cache.Locator{
		Partition: config.GeneralPartitionName(gen),
		Path:      normalizePath(c.site.OfflineDocument),
	}
	cached := c.lookup(ctx, locator)
	if cached == nil {
		return nil
	}
	return &Resolution{
		Class:     ClassGeneral,
		Partition: locator.Partition,
		CacheHit:  true,
		Fallback:  true,
		Response:  cached.Response,
	}
}

// storeAsync 后台写入缓存：不阻塞响应返回，不随请求取消而中断，
// 失败只记日志。并发未命中可能重复写同一条目，以后写为准。
func (c *Controller) storeAsync(ctx context.Context, locator cache.Locator, resp cache.Response) {
	c.background.Add(1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer c.background.Done()
		if _, err := c.store.Put(detached, locator, resp); err != nil {
			c.logStoreFailure(locator, err)
		}
	}()
}

func (c *Controller) logStoreFailure(locator cache.Locator, err error) {
	c.logger.WithError(err).WithFields(logrus.Fields{
		"action":    "cache_put",
		"partition": locator.Partition,
		"path":      locator.Path,
	}).Warn("cache_put_failed")
}
