package services

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SelectionStatus 单个文件的筛选结果
type SelectionStatus string

const (
	StatusSelected SelectionStatus = "selected"
	StatusSkipped  SelectionStatus = "skipped"
	StatusFailed   SelectionStatus = "failed"
)

// SelectionItem 扫描到的一个 markdown 文件
type SelectionItem struct {
	Path   string
	Status SelectionStatus
	Reason string
	Post   *Post // 仅 selected 时非空
}

// SelectionReport 一次扫描的完整结果，按遍历顺序排列
type SelectionReport struct {
	Date  time.Time
	Items []SelectionItem
}

// Posts 返回命中日期的文章
func (r *SelectionReport) Posts() []*Post {
	var posts []*Post
	for _, item := range r.Items {
		if item.Status == StatusSelected {
			posts = append(posts, item.Post)
		}
	}
	return posts
}

// Paths 返回命中日期的文件路径
func (r *SelectionReport) Paths() []string {
	var paths []string
	for _, item := range r.Items {
		if item.Status == StatusSelected {
			paths = append(paths, item.Path)
		}
	}
	return paths
}

// Failures 解析失败的文件
func (r *SelectionReport) Failures() []SelectionItem {
	var failed []SelectionItem
	for _, item := range r.Items {
		if item.Status == StatusFailed {
			failed = append(failed, item)
		}
	}
	return failed
}

// Selector 按 frontmatter 日期筛选文章
type Selector struct {
	dirs []string
	log  logrus.FieldLogger
}

func NewSelector(dirs []string, log logrus.FieldLogger) *Selector {
	return &Selector{dirs: dirs, log: log}
}

// Select 递归扫描所有目录，单个文件出错只记录，不中断扫描
func (s *Selector) Select(target time.Time) (*SelectionReport, error) {
	report := &SelectionReport{Date: target}

	for _, dir := range s.dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			s.log.WithField("dir", dir).Warn("blog subdirectory not found, skipping")
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// 无法进入的目录跳过，不影响其他文件
				report.Items = append(report.Items, SelectionItem{Path: path, Status: StatusFailed, Reason: err.Error()})
				s.log.WithError(err).WithField("path", path).Error("walk failed")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
				return nil
			}

			report.Items = append(report.Items, s.inspect(path, target))
			return nil
		})
		if err != nil && !errors.Is(err, fs.SkipDir) {
			return report, err
		}
	}

	return report, nil
}

func (s *Selector) inspect(path string, target time.Time) SelectionItem {
	post, err := LoadPost(path)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Error("error processing post")
		return SelectionItem{Path: path, Status: StatusFailed, Reason: err.Error()}
	}
	if post.FrontMatter.Date.IsZero() {
		return SelectionItem{Path: path, Status: StatusSkipped, Reason: "no date in frontmatter"}
	}
	if !SameDay(post.FrontMatter.Date, target) {
		return SelectionItem{Path: path, Status: StatusSkipped, Reason: "date " + post.FrontMatter.Date.Format("2006-01-02") + " does not match"}
	}
	return SelectionItem{Path: path, Status: StatusSelected, Post: post}
}
