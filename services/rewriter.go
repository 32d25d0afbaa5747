package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ![alt](path)、![alt](path "title")、![alt](<path>)，路径可以带空格
	reMarkdownImage = regexp.MustCompile(`!\[([^\]]*)\]\(\s*(<[^>\n]+>|[^)"'\n]+?)(?:\s+["'][^"'\n]*["'])?\s*\)`)
	// <img ... src="path" ...>
	reHTMLImage = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["'][^>]*>`)
)

// imageRef 正文中的一个图片引用，start/end 为路径本身在正文中的位置
type imageRef struct {
	Path   string
	Start  int
	End    int
	IsHTML bool
}

// findImageRefs 按出现顺序返回 markdown 与 html 两种写法的图片引用
func findImageRefs(content string) []imageRef {
	var refs []imageRef
	for _, m := range reMarkdownImage.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[4], m[5]
		// <path> 只替换尖括号里的部分
		if content[start] == '<' {
			start, end = start+1, end-1
		}
		refs = append(refs, imageRef{Path: content[start:end], Start: start, End: end})
	}
	for _, m := range reHTMLImage.FindAllStringSubmatchIndex(content, -1) {
		refs = append(refs, imageRef{Path: content[m[2]:m[3]], Start: m[2], End: m[3], IsHTML: true})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Start < refs[j].Start })
	return refs
}

// isRemote 已经是网络地址（或内联数据）的图片不处理
func isRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//") ||
		strings.HasPrefix(lower, "data:")
}

// replaceRefs 按位置替换路径，replacements 中没有的引用保持原样
func replaceRefs(content string, refs []imageRef, replacements map[int]string) string {
	var b strings.Builder
	last := 0
	for i, ref := range refs {
		newPath, ok := replacements[i]
		if !ok || ref.Start < last {
			continue
		}
		b.WriteString(content[last:ref.Start])
		b.WriteString(newPath)
		last = ref.End
	}
	b.WriteString(content[last:])
	return b.String()
}

// URLRewriter 把匹配本地前缀的图片改写为 {base_url}/images/{文件名}
type URLRewriter struct {
	baseURL  string
	patterns []string
}

func NewURLRewriter(baseURL string, patterns []string) *URLRewriter {
	return &URLRewriter{baseURL: strings.TrimRight(baseURL, "/"), patterns: patterns}
}

// Rewrite 返回改写后的正文以及被改写的原始路径
func (r *URLRewriter) Rewrite(content string) (string, []string) {
	refs := findImageRefs(content)
	replacements := map[int]string{}
	var local []string

	for i, ref := range refs {
		if isRemote(ref.Path) || !r.isLocal(ref.Path) {
			continue
		}
		replacements[i] = r.PublicURL(ref.Path)
		local = append(local, ref.Path)
	}
	return replaceRefs(content, refs, replacements), local
}

// PublicURL 图片在博客上的地址
func (r *URLRewriter) PublicURL(ref string) string {
	name := path.Base(filepath.ToSlash(ref))
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return fmt.Sprintf("%s/images/%s", r.baseURL, url.PathEscape(name))
}

func (r *URLRewriter) isLocal(ref string) bool {
	for _, p := range r.patterns {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// Uploader 把图片上传到远程服务
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (Asset, error)
}

// ImageResult 单个图片引用的处理结果
type ImageResult struct {
	Ref      string
	Resolved string
	Asset    Asset
	Cached   bool
	Skipped  string // 非空表示未处理的原因
}

// RewriteResult 一篇文章图片处理的结果
type RewriteResult struct {
	Content  string
	Cover    Asset
	Images   []ImageResult
	Uploaded int
}

// UploadRewriter 上传本地图片并替换为远程地址，按内容哈希缓存上传结果
type UploadRewriter struct {
	uploader Uploader
	cache    *UploadCache
	retry    *RetryPolicy
	maxWidth int
	http     *http.Client
	log      logrus.FieldLogger
}

func NewUploadRewriter(uploader Uploader, cache *UploadCache, retry *RetryPolicy, maxWidth int, log logrus.FieldLogger) *UploadRewriter {
	return &UploadRewriter{
		uploader: uploader,
		cache:    cache,
		retry:    retry,
		maxWidth: maxWidth,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

// Rewrite 处理正文中的所有本地图片，第一张成功的图片作为封面
// 任意一张图片上传失败都会返回错误
func (r *UploadRewriter) Rewrite(ctx context.Context, content, baseDir string) (*RewriteResult, error) {
	refs := findImageRefs(content)
	result := &RewriteResult{}
	replacements := map[int]string{}
	resolved := map[string]Asset{}

	for i, ref := range refs {
		if isRemote(ref.Path) {
			continue
		}

		abs := resolveLocal(ref.Path, baseDir)
		if abs == "" {
			r.log.WithField("image", ref.Path).Warn("local image not found, keeping reference")
			result.Images = append(result.Images, ImageResult{Ref: ref.Path, Skipped: "not found"})
			continue
		}

		asset, ok := resolved[abs]
		cached := true
		if !ok {
			var err error
			asset, cached, err = r.resolveFile(ctx, abs)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", ref.Path, err)
			}
			resolved[abs] = asset
			if !cached {
				result.Uploaded++
			}
		}

		if asset.URL != "" {
			replacements[i] = asset.URL
		}
		if result.Cover.MediaID == "" {
			result.Cover = asset
		}
		result.Images = append(result.Images, ImageResult{Ref: ref.Path, Resolved: abs, Asset: asset, Cached: cached})
	}

	result.Content = replaceRefs(content, refs, replacements)
	return result, nil
}

// ResolveCover 没有正文图片时使用默认封面，网络地址先下载再走同样的上传缓存
func (r *UploadRewriter) ResolveCover(ctx context.Context, src, baseDir string) (Asset, error) {
	if src == "" {
		return Asset{}, fmt.Errorf("no default cover configured")
	}
	if !isRemote(src) {
		abs := resolveLocal(src, baseDir)
		if abs == "" {
			return Asset{}, fmt.Errorf("default cover %s not found", src)
		}
		asset, _, err := r.resolveFile(ctx, abs)
		return asset, err
	}

	var data []byte
	err := r.retry.Do(ctx, "download cover", func(ctx context.Context) error {
		var err error
		data, err = r.download(ctx, src)
		return err
	})
	if err != nil {
		return Asset{}, err
	}
	asset, _, err := r.resolveBytes(ctx, coverFilename(src), data)
	return asset, err
}

func (r *UploadRewriter) resolveFile(ctx context.Context, abs string) (Asset, bool, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return Asset{}, false, err
	}
	return r.resolveBytes(ctx, filepath.Base(abs), data)
}

// resolveBytes 命中缓存直接返回，否则上传（带重试）后写入缓存
func (r *UploadRewriter) resolveBytes(ctx context.Context, filename string, data []byte) (Asset, bool, error) {
	hash := ContentHash(data)
	log := r.log.WithFields(logrus.Fields{"image": filename, "hash": hash[:12]})

	if asset, ok := r.cache.Get(hash); ok {
		log.Debug("image cache hit")
		return asset, true, nil
	}

	payload := shrinkImage(data, r.maxWidth)

	var asset Asset
	err := r.retry.Do(ctx, "upload "+filename, func(ctx context.Context) error {
		var err error
		asset, err = r.uploader.Upload(ctx, filename, payload)
		return err
	})
	if err != nil {
		return Asset{}, false, err
	}

	r.cache.Set(hash, asset)
	log.WithField("media_id", asset.MediaID).Info("image uploaded")
	return asset, false, nil
}

func (r *UploadRewriter) download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: bad status %s", src, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// resolveLocal 相对路径基于文章目录解析，文件不存在返回空
func resolveLocal(ref, baseDir string) string {
	candidates := []string{ref}
	if unescaped, err := url.PathUnescape(ref); err == nil && unescaped != ref {
		candidates = append(candidates, unescaped)
	}
	for _, c := range candidates {
		p := filepath.FromSlash(c)
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		p = filepath.Clean(p)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func coverFilename(src string) string {
	name := "cover.jpg"
	if u, err := url.Parse(src); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			if unescaped, err := url.PathUnescape(base); err == nil {
				base = unescaped
			}
			name = base
		}
	}
	return name
}
