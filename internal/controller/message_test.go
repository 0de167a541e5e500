package controller

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/asset-gate/asset-gate/internal/cache"
)

func TestSkipWaitingActivatesImmediately(t *testing.T) {
	site := testSite("v1")
	store := newTestStore(t)
	fetcher := newFakeFetcher()
	stubCriticalAssets(fetcher, site)

	c := newTestController(t, site, store, fetcher)
	ctx := context.Background()
	if err := c.Install(ctx); err != nil {
		t.Fatalf("install 失败: %v", err)
	}

	reply := c.HandleMessage(ctx, Command{Type: CommandSkipWaiting})
	if !reply.Success {
		t.Fatalf("SKIP_WAITING 应成功，得到 %+v", reply)
	}
	if c.Phase() != PhaseActive {
		t.Fatalf("SKIP_WAITING 后应进入 active，得到 %s", c.Phase())
	}

	// 已激活后重复下发等同于空操作。
	reply = c.HandleMessage(ctx, Command{Type: CommandSkipWaiting})
	if !reply.Success {
		t.Fatalf("重复 SKIP_WAITING 应成功，得到 %+v", reply)
	}
}

func TestSkipWaitingRejectedAfterFailedInstall(t *testing.T) {
	site := testSite("v1")
	fetcher := newFakeFetcher()
	fetcher.serve(testOrigin+"/", http.StatusOK, "root")
	fetcher.serve(testOrigin+"/index.html", http.StatusOK, "index")
	fetcher.fail(testOrigin+"/styles.css", errors.New("boom"))

	c := newTestController(t, site, newTestStore(t), fetcher)
	ctx := context.Background()
	if err := c.Install(ctx); err == nil {
		t.Fatalf("install 应失败")
	}

	reply := c.HandleMessage(ctx, Command{Type: CommandSkipWaiting})
	if reply.Success || reply.Error == "" {
		t.Fatalf("安装失败的世代不应被强制激活，得到 %+v", reply)
	}
}

func TestWarmMediaIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	fetcher := newFakeFetcher()
	mediaURL := testOrigin + "/videos/background.mp4"
	fetcher.serve(mediaURL, http.StatusOK, "video-bytes")

	c := activeController(t, store, fetcher)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		reply := c.HandleMessage(ctx, Command{Type: CommandCacheVideo})
		if !reply.Success {
			t.Fatalf("第 %d 次预热应成功，得到 %+v", i+1, reply)
		}
	}

	locator := cache.Locator{Partition: "media-v1", Path: "/videos/background.mp4"}
	result, err := store.Get(ctx, locator)
	if err != nil {
		t.Fatalf("预热后应能命中: %v", err)
	}
	if string(result.Response.Body) != "video-bytes" {
		t.Fatalf("预热正文不符: %s", result.Response.Body)
	}
	// 允许重复抓取覆盖，但媒体分区只应有这一条。
	names, err := store.Partitions(ctx)
	if err != nil {
		t.Fatalf("枚举分区失败: %v", err)
	}
	for _, name := range names {
		if name != "media-v1" && name != "general-v1" {
			t.Fatalf("预热不应创建额外分区: %v", names)
		}
	}
}

func TestWarmMediaReportsFetchFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail(testOrigin+"/videos/background.mp4", errors.New("origin down"))

	c := activeController(t, newTestStore(t), fetcher)
	reply := c.HandleMessage(context.Background(), Command{Type: CommandCacheVideo})
	if reply.Success {
		t.Fatalf("预热失败应返回 success=false")
	}
	if reply.Error == "" {
		t.Fatalf("失败应答必须携带错误描述")
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	c := activeController(t, newTestStore(t), newFakeFetcher())
	reply := c.HandleMessage(context.Background(), Command{Type: "REFRESH_EVERYTHING"})
	if reply.Success || reply.Error == "" {
		t.Fatalf("未知命令应返回失败应答，得到 %+v", reply)
	}
}
