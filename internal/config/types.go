package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	StorageBackend  string   `mapstructure:"StorageBackend"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// SiteConfig 决定网关前置的站点来源与缓存世代。分区名由 CacheVersion
// 派生：general-<ver> 与 media-<ver>，升级版本号即开启新世代。
type SiteConfig struct {
	Origin          string   `mapstructure:"Origin"`
	CacheVersion    string   `mapstructure:"CacheVersion"`
	CriticalAssets  []string `mapstructure:"CriticalAssets"`
	MediaAssets     []string `mapstructure:"MediaAssets"`
	OfflineDocument string   `mapstructure:"OfflineDocument"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Site   SiteConfig   `mapstructure:"Site"`
}

// OriginURL 返回解析后的站点 Origin。通过 Validate 的配置不会解析失败。
func (s SiteConfig) OriginURL() *url.URL {
	parsed, err := url.Parse(s.Origin)
	if err != nil {
		return &url.URL{}
	}
	return parsed
}

// GeneralPartition 返回当前世代的通用资产分区名。
func (s SiteConfig) GeneralPartition() string {
	return GeneralPartitionName(s.CacheVersion)
}

// MediaPartition 返回当前世代的大媒体分区名。
func (s SiteConfig) MediaPartition() string {
	return MediaPartitionName(s.CacheVersion)
}

// GeneralPartitionName 由世代号拼接通用分区名。
func GeneralPartitionName(version string) string {
	return "general-" + version
}

// MediaPartitionName 由世代号拼接媒体分区名。
func MediaPartitionName(version string) string {
	return "media-" + version
}
