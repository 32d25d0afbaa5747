package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid 配置校验失败
var ErrInvalid = errors.New("invalid configuration")

const (
	CacheDriverFile   = "file"
	CacheDriverSQLite = "sqlite"
	CacheDriverRedis  = "redis"
)

// DefaultFooter 文章页脚
const DefaultFooter = `
---
欢迎关注我的公众号：**潘智祥**
如果您喜欢使用电脑看文章，也可以关注我的博客：[https://panzhixiang.cn](https://panzhixiang.cn)
`

// OriginalLink 原文链接配置
type OriginalLink struct {
	Enabled  bool
	BaseURL  string
	Template string // 支持 {base_url} {year} {filename}
	LinkText string
}

// Highlight 代码高亮配置
type Highlight struct {
	Enabled bool
	Style   string
}

// Retry 上传 / 发布的重试配置
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// COS 独立文件模式下同步图片用的对象存储
type COS struct {
	BucketURL string
	SecretID  string
	SecretKey string
}

// Log 日志配置
type Log struct {
	Level  string
	Format string // text | json
}

type Config struct {
	AppID     string
	AppSecret string

	BlogDir     string
	BlogSubdirs []string

	CacheFile   string
	CacheDriver string
	RedisAddr   string

	BlogBaseURL        string
	ImageBaseURL       string
	LocalImagePatterns []string
	DefaultCoverImage  string
	MaxImageWidth      int

	OriginalLink OriginalLink
	Footer       string
	Highlight    Highlight
	Retry        Retry

	APIBaseURL string
	COS        COS
	Log        Log
}

// Load 加载配置：.env -> 配置文件 -> 环境变量
// configFile 为空时在当前目录查找 wechat-publisher.yaml，不存在也不报错
func Load(configFile string) (*Config, error) {
	// 尝试加载 .env 文件，如果不存在也不报错（可能通过系统环境变量注入）
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WECHAT_PUBLISHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("wechat-publisher")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		AppID:     os.Getenv("WECHAT_APP_ID"),
		AppSecret: os.Getenv("WECHAT_APP_SECRET"),

		BlogDir:     expandHome(v.GetString("blog.dir")),
		BlogSubdirs: v.GetStringSlice("blog.subdirs"),

		CacheFile:   v.GetString("cache.file"),
		CacheDriver: strings.ToLower(v.GetString("cache.driver")),
		RedisAddr:   v.GetString("cache.redis_addr"),

		BlogBaseURL:        strings.TrimRight(v.GetString("blog.base_url"), "/"),
		ImageBaseURL:       strings.TrimRight(v.GetString("image.base_url"), "/"),
		LocalImagePatterns: v.GetStringSlice("image.local_patterns"),
		DefaultCoverImage:  v.GetString("image.default_cover"),
		MaxImageWidth:      v.GetInt("image.max_width"),

		OriginalLink: OriginalLink{
			Enabled:  v.GetBool("original_link.enabled"),
			BaseURL:  v.GetString("original_link.base_url"),
			Template: v.GetString("original_link.template"),
			LinkText: v.GetString("original_link.link_text"),
		},
		Footer: v.GetString("article.footer"),
		Highlight: Highlight{
			Enabled: v.GetBool("article.highlight.enabled"),
			Style:   v.GetString("article.highlight.style"),
		},
		Retry: Retry{
			Attempts: v.GetInt("retry.attempts"),
			Delay:    v.GetDuration("retry.delay"),
		},

		APIBaseURL: strings.TrimRight(v.GetString("wechat.api_base_url"), "/"),
		COS: COS{
			BucketURL: v.GetString("cos.bucket_url"),
			SecretID:  os.Getenv("TENCENT_CLOUD_SECRET_ID"),
			SecretKey: os.Getenv("TENCENT_CLOUD_SECRET_KEY"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	// 原文链接默认使用博客地址
	if cfg.OriginalLink.BaseURL == "" {
		cfg.OriginalLink.BaseURL = cfg.BlogBaseURL
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("blog.dir", ".")
	v.SetDefault("blog.subdirs", []string{"myNotes"})
	v.SetDefault("blog.base_url", "https://panzhixiang.cn")

	v.SetDefault("cache.file", "cache.json")
	v.SetDefault("cache.driver", CacheDriverFile)
	v.SetDefault("cache.redis_addr", "localhost:6379")

	v.SetDefault("image.base_url", "https://blog.panzhixiang.cn")
	v.SetDefault("image.local_patterns", []string{"../images/", "./images/", "images/"})
	v.SetDefault("image.default_cover", "https://blog.panzhixiang.cn/images/%E6%9E%B8%E6%9D%9E%E5%B2%9B%E7%9A%84%E6%97%A5%E5%87%BA.jpg")
	v.SetDefault("image.max_width", 1080)

	v.SetDefault("original_link.enabled", true)
	v.SetDefault("original_link.template", "{base_url}/{year}/{filename}")
	v.SetDefault("original_link.link_text", "阅读原文")

	v.SetDefault("article.footer", DefaultFooter)
	v.SetDefault("article.highlight.enabled", true)
	v.SetDefault("article.highlight.style", "github")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", time.Second)

	v.SetDefault("wechat.api_base_url", "https://api.weixin.qq.com")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate 集中校验配置，一次性返回所有缺失项
// requireCredentials 为 true 时要求公众号凭证（发布模式）
func (c *Config) Validate(requireCredentials bool) error {
	var missing []string

	if requireCredentials {
		if c.AppID == "" {
			missing = append(missing, "WECHAT_APP_ID is not configured")
		}
		if c.AppSecret == "" {
			missing = append(missing, "WECHAT_APP_SECRET is not configured")
		}
	}

	if c.BlogDir == "" {
		missing = append(missing, "blog directory is not configured")
	} else if info, err := os.Stat(c.BlogDir); err != nil || !info.IsDir() {
		missing = append(missing, fmt.Sprintf("blog directory %s does not exist", c.BlogDir))
	}

	if c.OriginalLink.Enabled {
		if c.OriginalLink.BaseURL == "" {
			missing = append(missing, "original link base_url is not configured")
		}
		if c.OriginalLink.Template == "" {
			missing = append(missing, "original link template is not configured")
		}
	}

	switch c.CacheDriver {
	case CacheDriverFile, CacheDriverSQLite:
		if c.CacheFile == "" {
			missing = append(missing, "cache file is not configured")
		}
	case CacheDriverRedis:
		if c.RedisAddr == "" {
			missing = append(missing, "redis address is not configured")
		}
	default:
		missing = append(missing, fmt.Sprintf("unknown cache driver %q", c.CacheDriver))
	}

	if c.Retry.Attempts < 1 {
		missing = append(missing, "retry attempts must be at least 1")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(missing, "; "))
	}
	return nil
}

// SubdirPaths 返回需要扫描的目录绝对路径
func (c *Config) SubdirPaths() []string {
	if len(c.BlogSubdirs) == 0 {
		return []string{c.BlogDir}
	}
	paths := make([]string, 0, len(c.BlogSubdirs))
	for _, sub := range c.BlogSubdirs {
		paths = append(paths, filepath.Join(c.BlogDir, sub))
	}
	return paths
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
