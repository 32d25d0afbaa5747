package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hankmor/mymedia/tools/wechat-publisher/config"
	"github.com/hankmor/mymedia/tools/wechat-publisher/services"
)

//go:embed web
var embedFS embed.FS

var previewPort string

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Serve the assembled articles for today (or --date) on a local web page",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := targetDate()
		if err != nil {
			return err
		}
		cfg, log, err := loadConfig(false)
		if err != nil {
			return err
		}

		// 配置了公众号凭证才开放发布接口
		var publisher *services.Publisher
		if cfg.AppID != "" && cfg.AppSecret != "" {
			stack, err := newPublishStack(cfg, log)
			if err != nil {
				return err
			}
			defer stack.Close()
			publisher = stack.publisher
		} else {
			log.Warn("WECHAT_APP_ID / WECHAT_APP_SECRET not found, publish from preview is disabled")
		}

		srv := newPreviewServer(cfg, date, publisher, log)
		r, err := srv.routes()
		if err != nil {
			return err
		}

		addr := ":" + previewPort
		fmt.Printf("Starting server on http://localhost%s\n", addr)
		fmt.Printf("Press Ctrl+C to stop.\n")
		return r.Run(addr)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewPort, "port", "8080", "server port")
}

// previewServer 本地预览，图片只做地址替换，不上传
// publisher 非空时可以从预览页把单篇文章发到草稿箱
type previewServer struct {
	cfg       *config.Config
	date      time.Time
	selector  *services.Selector
	rewriter  *services.URLRewriter
	assembler *services.Assembler
	publisher *services.Publisher
	log       logrus.FieldLogger
}

func newPreviewServer(cfg *config.Config, date time.Time, publisher *services.Publisher, log logrus.FieldLogger) *previewServer {
	return &previewServer{
		cfg:       cfg,
		date:      date,
		selector:  newSelector(cfg, log),
		rewriter:  services.NewURLRewriter(cfg.ImageBaseURL, cfg.LocalImagePatterns),
		assembler: newAssembler(cfg),
		publisher: publisher,
		log:       log,
	}
}

func (s *previewServer) routes() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// web/templates -> templates
	templatesFS, err := fs.Sub(embedFS, "web/templates")
	if err != nil {
		return nil, err
	}
	tmpl, err := loadTemplates(templatesFS)
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	r.GET("/", s.handleList)
	r.GET("/article/:idx", s.handleArticle)
	r.GET("/api/articles", s.apiArticles)
	r.GET("/api/articles/:idx", s.apiArticleDetail)
	if s.publisher != nil {
		r.POST("/api/publish/:idx", s.handlePublish)
	}
	return r, nil
}

// loadTemplates 从 embed.FS 加载模板
func loadTemplates(fsys fs.FS) (*template.Template, error) {
	// Gin 的 LoadHTMLGlob 不支持 FS，需要手动 ParseFS
	return template.ParseFS(fsys, "*.html")
}

// 每次请求重新扫描，修改文章后刷新即可
func (s *previewServer) selection() (*services.SelectionReport, error) {
	return s.selector.Select(s.date)
}

func (s *previewServer) handleList(c *gin.Context) {
	report, err := s.selection()
	if err != nil {
		c.String(500, "扫描文章失败: %v", err)
		return
	}

	type item struct {
		Title string
		Path  string
	}
	var posts []item
	for _, p := range report.Posts() {
		posts = append(posts, item{Title: p.Title(), Path: p.Path})
	}

	c.HTML(200, "list.html", gin.H{
		"date":     s.date.Format("2006-01-02"),
		"posts":    posts,
		"failures": report.Failures(),
	})
}

func (s *previewServer) handleArticle(c *gin.Context) {
	post, status, msg := s.findPost(c.Param("idx"))
	if post == nil {
		c.String(status, msg)
		return
	}

	assembled, err := s.render(post)
	if err != nil {
		c.String(500, "渲染文章失败")
		return
	}

	c.HTML(200, "article.html", gin.H{
		"idx":        c.Param("idx"),
		"title":      post.Title(),
		"link":       services.OriginalLink(s.cfg.OriginalLink, post),
		"html":       template.HTML(assembled.HTML),
		"canPublish": s.publisher != nil,
	})
}

func (s *previewServer) render(post *services.Post) (*services.AssembledArticle, error) {
	content, _ := s.rewriter.Rewrite(post.Body)
	return s.assembler.Assemble(content)
}

func articleJSON(idx int, p *services.Post, link string) gin.H {
	return gin.H{
		"id":          idx,
		"title":       p.Title(),
		"path":        p.Path,
		"author":      p.FrontMatter.Author,
		"description": p.FrontMatter.Description,
		"link":        link,
	}
}

// apiArticles API: 文章列表
func (s *previewServer) apiArticles(c *gin.Context) {
	report, err := s.selection()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	out := []gin.H{}
	for i, p := range report.Posts() {
		out = append(out, articleJSON(i, p, services.OriginalLink(s.cfg.OriginalLink, p)))
	}
	c.JSON(200, out)
}

// apiArticleDetail API: 文章详情，附带渲染后的 HTML
func (s *previewServer) apiArticleDetail(c *gin.Context) {
	idx := c.Param("idx")
	post, status, msg := s.findPost(idx)
	if post == nil {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	assembled, err := s.render(post)
	if err != nil {
		c.JSON(500, gin.H{"error": "渲染文章失败"})
		return
	}

	id, _ := strconv.Atoi(idx)
	out := articleJSON(id, post, services.OriginalLink(s.cfg.OriginalLink, post))
	out["markdown"] = assembled.Markdown
	out["html"] = assembled.HTML
	c.JSON(200, out)
}

// handlePublish 把单篇文章发布到草稿箱，图片上传到公众号素材库
func (s *previewServer) handlePublish(c *gin.Context) {
	post, status, msg := s.findPost(c.Param("idx"))
	if post == nil {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	result := s.publisher.PublishPost(c.Request.Context(), post)
	if result.Err != nil {
		c.JSON(500, gin.H{"error": result.Err.Error()})
		return
	}

	c.JSON(200, gin.H{
		"success":  true,
		"title":    result.Title,
		"draft_id": result.DraftID,
		"uploaded": result.Uploaded,
	})
}

// findPost 按列表序号查找文章，失败时返回状态码和提示
func (s *previewServer) findPost(param string) (*services.Post, int, string) {
	idx, err := strconv.Atoi(param)
	if err != nil {
		return nil, 404, "文章不存在"
	}
	report, err := s.selection()
	if err != nil {
		return nil, 500, "扫描文章失败"
	}
	posts := report.Posts()
	if idx < 0 || idx >= len(posts) {
		return nil, 404, "文章不存在"
	}
	return posts[idx], 200, ""
}
