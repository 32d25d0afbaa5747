package services

import (
	"strconv"
	"strings"

	"github.com/hankmor/mymedia/tools/wechat-publisher/config"
)

// OriginalLink 生成原文链接，未启用或文章没有日期时返回空
func OriginalLink(cfg config.OriginalLink, post *Post) string {
	if !cfg.Enabled || post.FrontMatter.Date.IsZero() {
		return ""
	}
	r := strings.NewReplacer(
		"{base_url}", strings.TrimRight(cfg.BaseURL, "/"),
		"{year}", strconv.Itoa(post.FrontMatter.Date.Year()),
		"{filename}", post.Stem(),
	)
	return r.Replace(cfg.Template)
}
