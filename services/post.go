package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
)

// FrontMatter 文章头部元数据
type FrontMatter struct {
	Title       string
	Date        time.Time // 零值表示没有 date 字段
	Author      string
	Description string
}

// Post 从磁盘读取的一篇文章，每次运行重新加载
type Post struct {
	Path        string
	FrontMatter FrontMatter
	Body        string
}

// Dir 文章所在目录，用于解析相对图片路径
func (p *Post) Dir() string {
	return filepath.Dir(p.Path)
}

// Stem 不含扩展名的文件名
func (p *Post) Stem() string {
	base := filepath.Base(p.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Title 标题，frontmatter 没有时回退到文件名
func (p *Post) Title() string {
	if t := strings.TrimSpace(p.FrontMatter.Title); t != "" {
		return t
	}
	return p.Stem()
}

type frontMatterEnvelope struct {
	Title       string `yaml:"title"`
	Date        any    `yaml:"date"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
	Digest      string `yaml:"digest"`
}

// LoadPost 读取并解析文章
func LoadPost(path string) (*Post, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePost(path, source)
}

// ParsePost 解析 frontmatter 与正文
func ParsePost(path string, source []byte) (*Post, error) {
	// 处理 BOM
	source = bytes.TrimPrefix(source, []byte("\ufeff"))

	var env frontMatterEnvelope
	body, err := frontmatter.Parse(bytes.NewReader(source), &env)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	date, err := parseDate(env.Date)
	if err != nil {
		return nil, err
	}

	description := env.Description
	if description == "" {
		description = env.Digest
	}

	return &Post{
		Path: path,
		FrontMatter: FrontMatter{
			Title:       env.Title,
			Date:        date,
			Author:      env.Author,
			Description: description,
		},
		Body: string(body),
	}, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -07",
	"2006-01-02 15:04 -07:00",
	"2006-01-02 15:04 -0700",
	"2006-01-02T15:04:05",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
}

// parseDate 统一处理日期格式，YAML 时间戳和字符串都可以
func parseDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("parse date %q: unsupported format", s)
	default:
		return time.Time{}, fmt.Errorf("parse date: unsupported type %T", value)
	}
}

// SameDay 按日历日期比较
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
