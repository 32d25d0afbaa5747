package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hankmor/mymedia/tools/wechat-publisher/config"
	"github.com/hankmor/mymedia/tools/wechat-publisher/wechat"
)

// DraftClient 提交图文的远程接口
type DraftClient interface {
	AddDraft(ctx context.Context, articles []wechat.Article) (string, error)
}

// Article 发布到公众号的一篇图文，每篇文章构造一次、提交一次
type Article struct {
	Title        string
	HTMLBody     string
	CoverMediaID string
	SourceLink   string
	Description  string
	Author       string
}

func (a *Article) toWeChat() wechat.Article {
	return wechat.Article{
		Title:            a.Title,
		Author:           a.Author,
		Digest:           a.Description,
		Content:          a.HTMLBody,
		ContentSourceURL: a.SourceLink,
		ThumbMediaID:     a.CoverMediaID,
	}
}

// PublishResult 单篇文章的发布结果
type PublishResult struct {
	Path     string
	Title    string
	DraftID  string
	Uploaded int
	Err      error
}

// PublishReport 一次运行的发布结果
type PublishReport struct {
	Selection *SelectionReport
	Results   []PublishResult
}

// Failed 发布失败的篇数
func (r *PublishReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Publisher 筛选当天文章并逐篇发布，单篇失败不影响后续文章
type Publisher struct {
	cfg       *config.Config
	selector  *Selector
	rewriter  *UploadRewriter
	assembler *Assembler
	client    DraftClient
	retry     *RetryPolicy
	log       logrus.FieldLogger
}

func NewPublisher(cfg *config.Config, selector *Selector, rewriter *UploadRewriter, assembler *Assembler,
	client DraftClient, retry *RetryPolicy, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		cfg:       cfg,
		selector:  selector,
		rewriter:  rewriter,
		assembler: assembler,
		client:    client,
		retry:     retry,
		log:       log,
	}
}

// Run 顺序发布 date 当天的所有文章
func (p *Publisher) Run(ctx context.Context, date time.Time) (*PublishReport, error) {
	selection, err := p.selector.Select(date)
	if err != nil {
		return nil, err
	}
	report := &PublishReport{Selection: selection}

	posts := selection.Posts()
	if len(posts) == 0 {
		p.log.WithField("date", date.Format("2006-01-02")).Info("no posts to publish")
		return report, nil
	}

	for _, post := range posts {
		p.log.WithField("post", post.Path).Info("publishing")
		report.Results = append(report.Results, p.PublishPost(ctx, post))
	}
	return report, nil
}

// PublishPost 发布单篇文章，错误记录在结果中
func (p *Publisher) PublishPost(ctx context.Context, post *Post) PublishResult {
	log := p.log.WithField("post", post.Path)
	result := PublishResult{Path: post.Path, Title: post.Title()}

	article, rewrite, err := p.BuildArticle(ctx, post)
	if err != nil {
		result.Err = err
		log.WithError(err).Error("error publishing")
		return result
	}
	result.Uploaded = rewrite.Uploaded

	err = p.retry.Do(ctx, "publish "+article.Title, func(ctx context.Context) error {
		id, err := p.client.AddDraft(ctx, []wechat.Article{article.toWeChat()})
		if err != nil {
			return err
		}
		result.DraftID = id
		return nil
	})
	if err != nil {
		result.Err = err
		log.WithError(err).Error("error publishing")
		return result
	}

	fields := logrus.Fields{"title": article.Title, "media_id": result.DraftID}
	if article.SourceLink != "" {
		fields["original_link"] = article.SourceLink
	}
	log.WithFields(fields).Info("successfully published")
	return result
}

// BuildArticle 处理图片、生成原文链接、渲染正文，得到可提交的图文
func (p *Publisher) BuildArticle(ctx context.Context, post *Post) (*Article, *RewriteResult, error) {
	rewrite, err := p.rewriter.Rewrite(ctx, post.Body, post.Dir())
	if err != nil {
		return nil, nil, fmt.Errorf("process images: %w", err)
	}

	cover := rewrite.Cover
	if cover.MediaID == "" {
		cover, err = p.rewriter.ResolveCover(ctx, p.cfg.DefaultCoverImage, p.cfg.BlogDir)
		if err != nil {
			return nil, nil, fmt.Errorf("default cover: %w", err)
		}
		rewrite.Cover = cover
	}

	assembled, err := p.assembler.Assemble(rewrite.Content)
	if err != nil {
		return nil, nil, err
	}

	return &Article{
		Title:        post.Title(),
		HTMLBody:     assembled.HTML,
		CoverMediaID: cover.MediaID,
		SourceLink:   OriginalLink(p.cfg.OriginalLink, post),
		Description:  post.FrontMatter.Description,
		Author:       post.FrontMatter.Author,
	}, rewrite, nil
}
