package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// noSleepRetry 记录每次等待时间但不真正等待
func noSleepRetry(attempts int, delays *[]time.Duration) *RetryPolicy {
	p := NewRetryPolicy(attempts, LinearBackoff(time.Second), testLogger())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return p
}

var errUpload = errors.New("upload failed")

// fakeUploader 前 failures 次调用失败，之后成功
type fakeUploader struct {
	calls    int
	failures int
	names    []string
}

func (f *fakeUploader) Upload(ctx context.Context, filename string, data []byte) (Asset, error) {
	f.calls++
	if f.calls <= f.failures {
		return Asset{}, errUpload
	}
	f.names = append(f.names, filename)
	return Asset{
		MediaID: fmt.Sprintf("media-%d", f.calls),
		URL:     "https://mmbiz.qpic.cn/" + filename,
	}, nil
}

// memStore 内存缓存存储，记录保存次数
type memStore struct {
	entries map[string]Asset
	saves   int
	loadErr error
}

func (m *memStore) Load() (map[string]Asset, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := map[string]Asset{}
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(entries map[string]Asset) error {
	m.saves++
	m.entries = map[string]Asset{}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
