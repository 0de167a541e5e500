package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asset-gate/asset-gate/internal/controller"
	"github.com/asset-gate/asset-gate/internal/logging"
	"github.com/asset-gate/asset-gate/internal/upstream"
)

// AssetResolver describes the component resolving intercepted requests.
// It allows injecting fake resolvers during tests.
type AssetResolver interface {
	Resolve(ctx context.Context, req controller.AssetRequest) (*controller.Resolution, error)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Resolver   AssetResolver
	Origin     *url.URL
	ListenPort int
}

const contextKeyRequestID = "_assetgate_request_id"

// NewApp builds a Fiber application that intercepts every non-admin
// request and resolves it through the cache controller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("asset resolver is required")
	}
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("site origin is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isAdminPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return handleFetch(c, opts)
	})

	return app, nil
}

// requestIDMiddleware 负责为每个请求生成并回写 X-Request-ID。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// handleFetch 把 HTTP 请求翻译为 AssetRequest 并回放解析结果，
// 任何阶段出错都会输出结构化日志。
func handleFetch(c fiber.Ctx, opts AppOptions) error {
	started := time.Now()
	requestID := RequestID(c)

	target, err := requestTarget(string(c.Request().Header.RequestURI()), opts.Origin)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_target"})
	}

	req := controller.AssetRequest{
		URL:        target,
		Header:     requestHeaders(c),
		Navigation: isNavigation(c),
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolution, err := opts.Resolver.Resolve(ctx, req)
	if err != nil {
		logResult(opts.Logger, target, requestID, nil, started, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}

	for key, values := range resolution.Response.Header {
		if upstream.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Set("X-Asset-Gate-Class", string(resolution.Class))
	c.Set("X-Asset-Gate-Cache-Hit", fmt.Sprintf("%t", resolution.CacheHit))
	if resolution.Fallback {
		c.Set("X-Asset-Gate-Fallback", "true")
	}
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}

	logResult(opts.Logger, target, requestID, resolution, started, nil)
	return c.Status(resolution.Response.Status).Send(resolution.Response.Body)
}

// requestTarget 还原请求目标：代理形式的绝对 URI 原样使用（跨源场景），
// 普通路径请求解析到配置的站点 Origin 上。
func requestTarget(rawURI string, origin *url.URL) (*url.URL, error) {
	if strings.HasPrefix(rawURI, "http://") || strings.HasPrefix(rawURI, "https://") {
		return url.Parse(rawURI)
	}

	relative, err := url.ParseRequestURI(rawURI)
	if err != nil {
		return nil, err
	}
	return origin.ResolveReference(relative), nil
}

// isNavigation 判定顶层文档导航：浏览器的 Sec-Fetch-Mode 优先，
// 退而求其次看 GET + Accept: text/html。
func isNavigation(c fiber.Ctx) bool {
	if mode := c.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	return c.Method() == fiber.MethodGet &&
		strings.Contains(strings.ToLower(c.Get("Accept")), "text/html")
}

func requestHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func logResult(
	logger *logrus.Logger,
	target *url.URL,
	requestID string,
	resolution *controller.Resolution,
	started time.Time,
	err error,
) {
	fields := logrus.Fields{
		"action":     "resolve",
		"target":     target.String(),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		logger.WithFields(fields).Error("resolve_failed")
		return
	}
	for k, v := range logging.ResolveFields(string(resolution.Class), resolution.Partition, resolution.CacheHit) {
		fields[k] = v
	}
	fields["status"] = resolution.Response.Status
	fields["fallback"] = resolution.Fallback
	logger.WithFields(fields).Info("resolve_complete")
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isAdminPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
