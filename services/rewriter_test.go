package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestURLRewriter(t *testing.T) {
	r := NewURLRewriter("https://blog.example.com/", []string{"../images/", "./images/", "images/"})

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "relative parent prefix",
			input: "see ![diagram](../images/arch.png) here",
			want:  "see ![diagram](https://blog.example.com/images/arch.png) here",
		},
		{
			name:  "nested path keeps basename",
			input: "![](images/2024/03/photo.jpg)",
			want:  "![](https://blog.example.com/images/photo.jpg)",
		},
		{
			name:  "html img",
			input: `<img src="./images/a.png" width="300">`,
			want:  `<img src="https://blog.example.com/images/a.png" width="300">`,
		},
		{
			name:  "absolute url untouched",
			input: "![x](https://cdn.example.com/images/a.png)",
			want:  "![x](https://cdn.example.com/images/a.png)",
		},
		{
			name:  "non matching local path untouched",
			input: "![x](assets/a.png)",
			want:  "![x](assets/a.png)",
		},
		{
			name:  "space in file name",
			input: "![x](images/my pic.png)",
			want:  "![x](https://blog.example.com/images/my%20pic.png)",
		},
		{
			name:  "angle bracket destination",
			input: `![x](<images/my pic.png> "t")`,
			want:  `![x](<https://blog.example.com/images/my%20pic.png> "t")`,
		},
		{
			name:  "already escaped name",
			input: "![x](images/my%20pic.png)",
			want:  "![x](https://blog.example.com/images/my%20pic.png)",
		},
		{
			name:  "title is preserved",
			input: `![x](images/a.png "A title")`,
			want:  `![x](https://blog.example.com/images/a.png "A title")`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := r.Rewrite(tc.input)
			if got != tc.want {
				t.Errorf("got  %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestURLRewriterReportsLocalRefs(t *testing.T) {
	r := NewURLRewriter("https://blog.example.com", []string{"images/"})
	_, local := r.Rewrite("![a](images/a.png) ![b](http://x/b.png) ![c](images/c.png)")
	if len(local) != 2 || local[0] != "images/a.png" || local[1] != "images/c.png" {
		t.Fatalf("local = %v", local)
	}
}

func newTestRewriter(up Uploader, store *memStore, attempts int) (*UploadRewriter, *UploadCache) {
	cache := NewUploadCache(store, testLogger())
	return NewUploadRewriter(up, cache, noSleepRetry(attempts, nil), 0, testLogger()), cache
}

func TestUploadRewriterUploadsAndReplaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "images", "a.png"), "png-a")
	writeFile(t, filepath.Join(dir, "images", "b.png"), "png-b")

	content := "![a](images/a.png)\n<img src=\"images/b.png\">\n![again](./images/a.png)\n![remote](https://example.com/r.png)\n![missing](images/none.png)"

	up := &fakeUploader{}
	store := &memStore{}
	r, cache := newTestRewriter(up, store, 3)

	res, err := r.Rewrite(context.Background(), content, dir)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	// a.png 引用两次只上传一次
	if up.calls != 2 || res.Uploaded != 2 {
		t.Fatalf("uploads = %d (reported %d), want 2", up.calls, res.Uploaded)
	}
	if cache.Len() != 2 || store.saves != 2 {
		t.Fatalf("cache len = %d, saves = %d", cache.Len(), store.saves)
	}
	if res.Cover.MediaID != "media-1" {
		t.Fatalf("cover = %+v, want first image", res.Cover)
	}

	want := "![a](https://mmbiz.qpic.cn/a.png)\n<img src=\"https://mmbiz.qpic.cn/b.png\">\n![again](https://mmbiz.qpic.cn/a.png)\n![remote](https://example.com/r.png)\n![missing](images/none.png)"
	if res.Content != want {
		t.Fatalf("content:\n%s\nwant:\n%s", res.Content, want)
	}
}

func TestUploadRewriterPathWithSpaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "images", "my pic.png"), "png-space")

	up := &fakeUploader{}
	r, _ := newTestRewriter(up, &memStore{}, 3)

	res, err := r.Rewrite(context.Background(), "![a](images/my pic.png)\n![b]( <images/my pic.png> )", dir)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if up.calls != 1 || res.Cover.MediaID != "media-1" {
		t.Fatalf("uploads = %d, cover = %+v", up.calls, res.Cover)
	}
	want := "![a](https://mmbiz.qpic.cn/my pic.png)\n![b]( <https://mmbiz.qpic.cn/my pic.png> )"
	if res.Content != want {
		t.Fatalf("content:\n%s\nwant:\n%s", res.Content, want)
	}
}

func TestUploadRewriterCacheHitAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "png-a")
	content := "![a](a.png)"

	store := &memStore{}
	up := &fakeUploader{}
	r, _ := newTestRewriter(up, store, 3)
	if _, err := r.Rewrite(context.Background(), content, dir); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if up.calls != 1 {
		t.Fatalf("first run uploads = %d", up.calls)
	}

	// 新的一次运行：从同一个存储重新加载缓存
	up2 := &fakeUploader{}
	r2, _ := newTestRewriter(up2, store, 3)
	res, err := r2.Rewrite(context.Background(), content, dir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if up2.calls != 0 {
		t.Fatalf("second run uploads = %d, want 0", up2.calls)
	}
	if res.Cover.MediaID != "media-1" || !res.Images[0].Cached {
		t.Fatalf("expected cached asset, got %+v", res.Images)
	}
}

func TestUploadRewriterSameContentDifferentPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "same-bytes")
	writeFile(t, filepath.Join(dir, "copy", "b.png"), "same-bytes")

	up := &fakeUploader{}
	r, _ := newTestRewriter(up, &memStore{}, 3)
	if _, err := r.Rewrite(context.Background(), "![a](a.png) ![b](copy/b.png)", dir); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if up.calls != 1 {
		t.Fatalf("uploads = %d, want 1", up.calls)
	}
}

func TestUploadRewriterRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "png-a")

	up := &fakeUploader{failures: 2}
	r, cache := newTestRewriter(up, &memStore{}, 3)

	res, err := r.Rewrite(context.Background(), "![a](a.png)", dir)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if up.calls != 3 {
		t.Fatalf("attempts = %d, want 3", up.calls)
	}
	if res.Cover.MediaID != "media-3" || cache.Len() != 1 {
		t.Fatalf("cover = %+v, cache len = %d", res.Cover, cache.Len())
	}
}

func TestUploadRewriterExhaustedLeavesCacheUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "png-a")

	up := &fakeUploader{failures: 3}
	store := &memStore{}
	r, cache := newTestRewriter(up, store, 3)

	_, err := r.Rewrite(context.Background(), "![a](a.png)", dir)
	if !errors.Is(err, errUpload) {
		t.Fatalf("expected errUpload, got %v", err)
	}
	if up.calls != 3 {
		t.Fatalf("attempts = %d, want 3", up.calls)
	}
	if cache.Len() != 0 || store.saves != 0 {
		t.Fatalf("cache modified: len=%d saves=%d", cache.Len(), store.saves)
	}
}

func TestResolveCoverDownloadsDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/cover.jpg") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	up := &fakeUploader{}
	r, _ := newTestRewriter(up, &memStore{}, 3)

	asset, err := r.ResolveCover(context.Background(), srv.URL+"/images/cover.jpg", t.TempDir())
	if err != nil {
		t.Fatalf("ResolveCover: %v", err)
	}
	if asset.MediaID == "" || up.names[0] != "cover.jpg" {
		t.Fatalf("asset = %+v, names = %v", asset, up.names)
	}

	// 第二次命中缓存
	if _, err := r.ResolveCover(context.Background(), srv.URL+"/images/cover.jpg", t.TempDir()); err != nil {
		t.Fatalf("ResolveCover: %v", err)
	}
	if up.calls != 1 {
		t.Fatalf("uploads = %d, want 1", up.calls)
	}
}
