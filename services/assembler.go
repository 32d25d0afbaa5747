package services

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/article.html
var articleTemplateSource string

var articleTemplate = template.Must(template.New("article").Parse(articleTemplateSource))

// AssembledArticle 渲染结果
type AssembledArticle struct {
	Markdown string // 正文 + 页脚
	Body     string // markdown 渲染出的 HTML
	HTML     string // 套用模板后的完整内容
}

// Assembler 追加页脚、渲染 markdown、套用 HTML 模板
type Assembler struct {
	footer string
	md     goldmark.Markdown
}

// NewAssembler highlightStyle 为空时不做代码高亮
func NewAssembler(footer, highlightStyle string) *Assembler {
	exts := []goldmark.Extender{
		extension.Table,
		extension.DefinitionList,
		extension.Strikethrough,
		extension.TaskList,
	}
	if highlightStyle != "" {
		exts = append(exts, highlighting.NewHighlighting(
			highlighting.WithStyle(highlightStyle),
			highlighting.WithFormatOptions(
				chromahtml.WithLineNumbers(false), // 微信里行号样式容易错乱
			),
		))
	}

	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(), // 目录锚点
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
			html.WithUnsafe(), // 允许 HTML 标签
		),
	)

	return &Assembler{footer: footer, md: md}
}

// Assemble 纯函数，除渲染错误外没有其他失败路径
func (a *Assembler) Assemble(body string) (*AssembledArticle, error) {
	source := body + "\n" + a.footer

	var buf bytes.Buffer
	if err := a.md.Convert([]byte(source), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	rendered := strings.TrimSpace(buf.String())

	var out bytes.Buffer
	if err := articleTemplate.Execute(&out, map[string]any{
		"Content": template.HTML(rendered),
	}); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return &AssembledArticle{
		Markdown: source,
		Body:     rendered,
		HTML:     out.String(),
	}, nil
}

// RenderFooter 单独渲染页脚，用于检查正文结尾
func (a *Assembler) RenderFooter() (string, error) {
	var buf bytes.Buffer
	if err := a.md.Convert([]byte(a.footer), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
