package upstream

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Result 是一次回源请求的完整读出：状态、头部、正文。传输层错误
// 不会产生 Result（以 error 表达）；非 200 状态码是合法响应而非失败。
type Result struct {
	Status    int
	Header    http.Header
	Body      []byte
	FetchedAt time.Time
}

// Fetcher 抽象网络传输，便于测试注入假实现。
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL, header http.Header) (*Result, error)
}

// NewFetcher 以共享 http.Client 构建 Fetcher。
func NewFetcher(client *http.Client) Fetcher {
	return &httpFetcher{client: client}
}

type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, target *url.URL, header http.Header) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	CopyHeaders(req.Header, header)
	// 正文整体落缓存，压缩编码交由 Content-Type 之外的层处理。
	req.Header.Set("Accept-Encoding", "identity")
	req.Host = target.Host

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:    resp.StatusCode,
		Header:    make(http.Header, len(resp.Header)),
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}
	CopyHeaders(result.Header, resp.Header)
	result.Header.Del("Content-Length")
	return result, nil
}
