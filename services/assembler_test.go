package services

import (
	"strings"
	"testing"

	"github.com/hankmor/mymedia/tools/wechat-publisher/config"
)

const testFooter = "\n---\n欢迎关注我的公众号：**潘智祥**\n"

func TestAssembleAppendsFooter(t *testing.T) {
	a := NewAssembler(testFooter, "")

	out, err := a.Assemble("# Title\n\nSome text.")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	footer, err := a.RenderFooter()
	if err != nil {
		t.Fatalf("RenderFooter: %v", err)
	}
	if !strings.HasSuffix(out.Body, footer) {
		t.Fatalf("body does not end with footer:\n%s\nfooter:\n%s", out.Body, footer)
	}
	if !strings.Contains(footer, "<strong>潘智祥</strong>") || !strings.Contains(footer, "<hr />") {
		t.Fatalf("unexpected footer html %q", footer)
	}
	if !strings.HasPrefix(out.HTML, `<div class="article-content">`) || !strings.Contains(out.HTML, out.Body) {
		t.Fatalf("template not applied:\n%s", out.HTML)
	}
	if !strings.Contains(out.Body, `<h1 id="title">Title</h1>`) {
		t.Fatalf("heading id missing:\n%s", out.Body)
	}
}

func TestAssembleExtensions(t *testing.T) {
	a := NewAssembler("", "")
	src := "| a | b |\n|---|---|\n| 1 | 2 |\n\nTerm\n: Definition\n"

	out, err := a.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, want := range []string{"<table>", "<td>1</td>", "<dl>", "<dt>Term</dt>", "<dd>Definition</dd>"} {
		if !strings.Contains(out.Body, want) {
			t.Errorf("missing %q in:\n%s", want, out.Body)
		}
	}
}

func TestAssembleHighlightsCode(t *testing.T) {
	src := "```go\nfunc main() {}\n```\n"

	plain, err := NewAssembler("", "").Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(plain.Body, `<code class="language-go">`) {
		t.Fatalf("plain fenced code missing:\n%s", plain.Body)
	}

	highlighted, err := NewAssembler("", "github").Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(highlighted.Body, "style=") {
		t.Fatalf("expected inline highlight styles:\n%s", highlighted.Body)
	}
}

func TestAssembleDefaultFooter(t *testing.T) {
	out, err := NewAssembler(config.DefaultFooter, "").Assemble("正文")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := `<p>欢迎关注我的公众号：<strong>潘智祥</strong>
如果您喜欢使用电脑看文章，也可以关注我的博客：<a href="https://panzhixiang.cn">https://panzhixiang.cn</a></p>`
	if !strings.HasSuffix(out.Body, want) {
		t.Fatalf("body does not end with the default footer:\n%s", out.Body)
	}
}
