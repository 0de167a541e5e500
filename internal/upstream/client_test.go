package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/asset-gate/asset-gate/internal/config"
)

func TestNewClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestCopyHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("X-Test-Header", "1")
	src.Add("x-test-header", "2")

	dst := http.Header{}
	CopyHeaders(dst, src)

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Keep-Alive"]; exists {
		t.Fatalf("keep-alive header should not be copied")
	}

	got := dst.Values("X-Test-Header")
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
}

func TestFetcherReadsFullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("body { margin: 0 }"))
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(srv.Client())
	target, _ := url.Parse(srv.URL + "/styles.css")
	result, err := fetcher.Fetch(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("status mismatch: %d", result.Status)
	}
	if string(result.Body) != "body { margin: 0 }" {
		t.Fatalf("body mismatch: %s", result.Body)
	}
	if result.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("header mismatch: %s", result.Header.Get("Content-Type"))
	}
}

func TestFetcherReturnsNon200AsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(srv.Client())
	target, _ := url.Parse(srv.URL + "/missing")
	result, err := fetcher.Fetch(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("non-200 must not be a transport error: %v", err)
	}
	if result.Status != http.StatusNotFound {
		t.Fatalf("status mismatch: %d", result.Status)
	}
}
