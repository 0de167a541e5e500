package config

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// 支持的缓存存储后端。
const (
	BackendFS      = "fs"
	BackendLevelDB = "leveldb"
)

const supportedBackendList = "fs|leveldb"

// versionTagPattern 约束世代号只能由字母数字、点与连字符组成，
// 因为它会直接拼进分区名与磁盘目录名。
var versionTagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]*$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	switch g.StorageBackend {
	case BackendFS, BackendLevelDB:
	default:
		return newFieldError("Global.StorageBackend", "仅支持 "+supportedBackendList)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	s := &c.Site
	if err := validateOrigin(s.Origin); err != nil {
		return newFieldError(siteField("Origin"), err.Error())
	}
	if !versionTagPattern.MatchString(s.CacheVersion) {
		return newFieldError(siteField("CacheVersion"), "仅允许字母数字、点与连字符")
	}
	if len(s.CriticalAssets) == 0 {
		return newFieldError(siteField("CriticalAssets"), "至少需要一个关键资产")
	}
	for i, asset := range s.CriticalAssets {
		if err := validateAssetPath(asset); err != nil {
			return newFieldError(listField("CriticalAssets", i), err.Error())
		}
	}
	for i, asset := range s.MediaAssets {
		if err := validateAssetPath(asset); err != nil {
			return newFieldError(listField("MediaAssets", i), err.Error())
		}
		if path.Base(asset) == "/" || path.Base(asset) == "." {
			return newFieldError(listField("MediaAssets", i), "必须包含文件名")
		}
	}
	if err := validateAssetPath(s.OfflineDocument); err != nil {
		return newFieldError(siteField("OfflineDocument"), err.Error())
	}

	return nil
}

func validateOrigin(origin string) error {
	if origin == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return errors.New("不是合法 URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少主机名")
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return errors.New("不允许包含路径")
	}
	return nil
}

func validateAssetPath(asset string) error {
	if asset == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(asset, "/") {
		return errors.New("必须以 / 开头")
	}
	if strings.ContainsAny(asset, " \t") {
		return errors.New("不允许包含空白字符")
	}
	return nil
}
