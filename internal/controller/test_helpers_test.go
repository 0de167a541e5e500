package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/asset-gate/asset-gate/internal/cache"
	"github.com/asset-gate/asset-gate/internal/config"
	"github.com/asset-gate/asset-gate/internal/upstream"
)

const testOrigin = "https://www.example.com"

// fakeFetcher 以完整 URL 为键回放预置响应，并统计每个 URL 的抓取次数。
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*upstream.Result
	errs      map[string]error
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*upstream.Result),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) serve(rawURL string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[rawURL] = &upstream.Result{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

func (f *fakeFetcher) fail(rawURL string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[rawURL] = err
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func (f *fakeFetcher) Fetch(_ context.Context, target *url.URL, _ http.Header) (*upstream.Result, error) {
	key := target.String()
	f.mu.Lock()
	f.calls[key]++
	err := f.errs[key]
	result := f.responses[key]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no stubbed response for %s", key)
	}
	clone := *result
	return &clone, nil
}

func testSite(version string) config.SiteConfig {
	return config.SiteConfig{
		Origin:          testOrigin,
		CacheVersion:    version,
		CriticalAssets:  []string{"/", "/index.html", "/styles.css"},
		MediaAssets:     []string{"/videos/background.mp4"},
		OfflineDocument: "/index.html",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestController(t *testing.T, site config.SiteConfig, store cache.Store, fetcher upstream.Fetcher) *Controller {
	t.Helper()
	c, err := New(site, store, fetcher, quietLogger())
	if err != nil {
		t.Fatalf("构建控制器失败: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewStore(config.BackendFS, t.TempDir())
	if err != nil {
		t.Fatalf("构建缓存失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// stubCriticalAssets 为站点全部关键资产注册 200 响应。
func stubCriticalAssets(fetcher *fakeFetcher, site config.SiteConfig) {
	for _, asset := range site.CriticalAssets {
		fetcher.serve(testOrigin+asset, http.StatusOK, "content of "+asset)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("解析 URL 失败: %v", err)
	}
	return parsed
}
