package controller

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Class 标记请求分类结果：大媒体走专用分区，其余走通用分区。
type Class string

const (
	ClassGeneral Class = "general"
	ClassMedia   Class = "media"
)

// AssetRequest 是一次被拦截的出站请求。URL 必须是绝对地址；
// Navigation 表示顶层 HTML 文档导航（离线回退只对它生效）。
type AssetRequest struct {
	URL        *url.URL
	Header     http.Header
	Navigation bool
}

// Classify 按文件名后缀匹配媒体清单：请求路径的最后一段与任一
// MediaAssets 条目的最后一段相同即视为媒体资产，与完整路径无关。
func (c *Controller) Classify(u *url.URL) Class {
	base := path.Base(path.Clean("/" + u.Path))
	for _, entry := range c.site.MediaAssets {
		if base == path.Base(entry) {
			return ClassMedia
		}
	}
	return ClassGeneral
}

// sameOrigin 比较请求来源与配置的站点 Origin（scheme + host）。
func (c *Controller) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.origin.Scheme) &&
		strings.EqualFold(u.Host, c.origin.Host)
}

// cacheKey 规范化缓存键：查询串不参与匹配；跨源条目带上主机名前缀，
// 避免与本站路径冲突。
func (c *Controller) cacheKey(u *url.URL) string {
	clean := normalizePath(u.Path)
	if c.sameOrigin(u) {
		return clean
	}
	return "/external/" + strings.ToLower(u.Host) + clean
}

func normalizePath(p string) string {
	return path.Clean("/" + p)
}
