package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/asset-gate/asset-gate/internal/cache"
	"github.com/asset-gate/asset-gate/internal/config"
	"github.com/asset-gate/asset-gate/internal/logging"
	"github.com/asset-gate/asset-gate/internal/upstream"
)

// Phase 表示控制器生命周期阶段。
type Phase string

const (
	// PhaseInstalling 初始阶段：正在预缓存关键资产。
	PhaseInstalling Phase = "installing"
	// PhaseWaiting 安装成功，等待切换（可被 SKIP_WAITING 立即推进）。
	PhaseWaiting Phase = "waiting"
	// PhaseActive 已完成切换，稳定服务请求。
	PhaseActive Phase = "active"
	// PhaseRedundant 安装失败，本世代不接管；若存在旧世代则继续由其服务。
	PhaseRedundant Phase = "redundant"
)

// ErrInstallFailed 表示关键资产预缓存失败，本世代不能接管。
var ErrInstallFailed = errors.New("critical asset install failed")

// Controller 在客户端与网络之间调度缓存分区：安装期填充通用分区，
// 激活期清理过期世代，稳定期按 cache-first 策略解析每个请求。
type Controller struct {
	site    config.SiteConfig
	origin  *url.URL
	store   cache.Store
	fetcher upstream.Fetcher
	logger  *logrus.Logger

	mu      sync.Mutex
	phase   Phase
	serving string // 当前对外服务的世代号；安装失败时保持旧世代

	background sync.WaitGroup
}

// New 构建控制器并侦测磁盘上遗留的旧世代。新世代要等 Install/Activate
// 成功后才接管；在那之前请求继续由旧世代分区服务。
func New(site config.SiteConfig, store cache.Store, fetcher upstream.Fetcher, logger *logrus.Logger) (*Controller, error) {
	origin := site.OriginURL()
	if origin.Host == "" {
		return nil, fmt.Errorf("invalid site origin: %s", site.Origin)
	}

	c := &Controller{
		site:    site,
		origin:  origin,
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		phase:   PhaseInstalling,
	}
	c.serving = c.previousGeneration(context.Background())
	return c, nil
}

// previousGeneration 扫描已有分区，返回除目标世代外最新的世代号。
func (c *Controller) previousGeneration(ctx context.Context) string {
	names, err := c.store.Partitions(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("partition_scan_failed")
		return ""
	}

	var tags []string
	for _, name := range names {
		tag, ok := strings.CutPrefix(name, "general-")
		if !ok || tag == c.site.CacheVersion {
			continue
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return ""
	}
	sort.Sort(sort.Reverse(sort.StringSlice(tags)))
	return tags[0]
}

// Install 把 CriticalAssets 全量抓取并写入新世代的通用分区。
// 任何一条失败都会回滚整个分区并返回 ErrInstallFailed：没有部分安装，
// 旧世代继续服务。
func (c *Controller) Install(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseInstalling {
		c.mu.Unlock()
		return fmt.Errorf("install already ran (phase %s)", c.phase)
	}
	c.mu.Unlock()

	partition := c.site.GeneralPartition()
	fields := logging.LifecycleFields("install", c.site.CacheVersion)
	fields["assets"] = len(c.site.CriticalAssets)

	for _, asset := range c.site.CriticalAssets {
		if err := c.precache(ctx, partition, asset); err != nil {
			if dropErr := c.store.DropPartition(ctx, partition); dropErr != nil {
				c.logger.WithError(dropErr).Warn("install_rollback_failed")
			}
			c.setPhase(PhaseRedundant)
			fields["asset"] = asset
			fields["error"] = err.Error()
			c.logger.WithFields(fields).Error("install_failed")
			return fmt.Errorf("%w: %s: %v", ErrInstallFailed, asset, err)
		}
	}

	c.setPhase(PhaseWaiting)
	c.logger.WithFields(fields).Info("install_complete")
	return nil
}

// precache 抓取单个资产并写入指定分区，非 200 视为失败。
func (c *Controller) precache(ctx context.Context, partition, asset string) error {
	target := c.origin.ResolveReference(&url.URL{Path: asset})
	result, err := c.fetcher.Fetch(ctx, target, nil)
	if err != nil {
		return err
	}
	if result.Status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", result.Status)
	}

	locator := cache.Locator{Partition: partition, Path: normalizePath(asset)}
	_, err = c.store.Put(ctx, locator, cache.Response{
		Status:   result.Status,
		Header:   result.Header,
		Body:     result.Body,
		StoredAt: result.FetchedAt,
	})
	return err
}

// Activate 清理所有不属于当前世代的分区并完成切换。重复调用无副作用。
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseActive:
		c.mu.Unlock()
		return nil
	case PhaseWaiting:
	default:
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("cannot activate from phase %s", phase)
	}
	c.mu.Unlock()

	keep := map[string]struct{}{
		c.site.GeneralPartition(): {},
		c.site.MediaPartition():   {},
	}

	names, err := c.store.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("enumerate partitions: %w", err)
	}
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := c.store.DropPartition(ctx, name); err != nil {
			return fmt.Errorf("drop stale partition %s: %w", name, err)
		}
		c.logger.WithFields(logrus.Fields{
			"action":    "activate",
			"partition": name,
		}).Info("stale_partition_dropped")
	}

	c.mu.Lock()
	c.serving = c.site.CacheVersion
	c.phase = PhaseActive
	c.mu.Unlock()

	c.logger.WithFields(logging.LifecycleFields("activate", c.site.CacheVersion)).Info("activate_complete")
	return nil
}

// SkipWaitingEligible 表示安装已成功、可以立即切换。
func (c *Controller) SkipWaitingEligible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseWaiting
}

// Phase 返回当前生命周期阶段。
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ServingGeneration 返回当前实际服务请求的世代号，可能为空
// （既无旧世代、新世代也未激活）。
func (c *Controller) ServingGeneration() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseActive {
		return c.site.CacheVersion
	}
	return c.serving
}

// generation 返回请求解析应使用的世代号。激活前落在旧世代上；
// 没有旧世代时使用目标世代（分区为空则自然全部回源）。
func (c *Controller) generation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseActive || c.serving == "" {
		return c.site.CacheVersion
	}
	return c.serving
}

// Close 等待所有后台写缓存任务结束。进行中的写入不随请求取消而中断。
func (c *Controller) Close() {
	c.background.Wait()
}

func (c *Controller) setPhase(phase Phase) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
}
