package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultOutputDir 未指定输出目录时使用，每次运行前清理其中的 .md 文件
const DefaultOutputDir = "processed_blogs"

// ImageSyncer 把本地图片同步到博客图片地址背后的存储
type ImageSyncer interface {
	Sync(ctx context.Context, localPath, key string) error
}

// ProcessResult 单篇文章的处理结果
type ProcessResult struct {
	Source string
	Output string
	Synced int
	Err    error
}

// Processor 生成去掉 frontmatter、图片改为线上地址、带页脚的独立 markdown
type Processor struct {
	selector  *Selector
	rewriter  *URLRewriter
	footer    string
	outputDir string
	syncer    ImageSyncer // 可为空
	log       logrus.FieldLogger
}

// NewProcessor outputDir 为空时使用当前目录下的 processed_blogs
func NewProcessor(selector *Selector, rewriter *URLRewriter, footer, outputDir string, syncer ImageSyncer, log logrus.FieldLogger) (*Processor, error) {
	cleanup := false
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		outputDir = filepath.Join(wd, DefaultOutputDir)
		cleanup = true
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	p := &Processor{
		selector:  selector,
		rewriter:  rewriter,
		footer:    footer,
		outputDir: outputDir,
		syncer:    syncer,
		log:       log,
	}
	if cleanup {
		p.cleanOutputDir()
	}
	return p, nil
}

func (p *Processor) OutputDir() string {
	return p.outputDir
}

func (p *Processor) cleanOutputDir() {
	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if err := os.Remove(filepath.Join(p.outputDir, e.Name())); err != nil {
			p.log.WithError(err).WithField("file", e.Name()).Error("error removing file")
		}
	}
}

// Run 处理 date 当天的所有文章
func (p *Processor) Run(ctx context.Context, date time.Time) ([]ProcessResult, error) {
	selection, err := p.selector.Select(date)
	if err != nil {
		return nil, err
	}
	posts := selection.Posts()
	if len(posts) == 0 {
		p.log.WithField("date", date.Format("2006-01-02")).Info("no blog files found")
		return nil, nil
	}

	var results []ProcessResult
	for _, post := range posts {
		res := p.ProcessPost(ctx, post, date)
		if res.Err != nil {
			p.log.WithError(res.Err).WithField("post", post.Path).Error("error processing post")
		} else {
			p.log.WithFields(logrus.Fields{"post": filepath.Base(post.Path), "output": res.Output}).Info("processed")
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessPost 改写图片、追加页脚并写入输出目录
func (p *Processor) ProcessPost(ctx context.Context, post *Post, date time.Time) ProcessResult {
	res := ProcessResult{Source: post.Path}

	content, local := p.rewriter.Rewrite(post.Body)
	content = content + "\n\n" + p.footer

	if p.syncer != nil {
		for _, ref := range local {
			abs := resolveLocal(ref, post.Dir())
			if abs == "" {
				p.log.WithField("image", ref).Warn("local image not found, not synced")
				continue
			}
			key := "images/" + filepath.Base(abs)
			if err := p.syncer.Sync(ctx, abs, key); err != nil {
				res.Err = fmt.Errorf("sync image %s: %w", ref, err)
				return res
			}
			res.Synced++
		}
	}

	name := fmt.Sprintf("processed_%s_%s.md", post.Stem(), date.Format("2006-01-02"))
	out := filepath.Join(p.outputDir, name)
	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		res.Err = err
		return res
	}
	res.Output = out
	return res
}
