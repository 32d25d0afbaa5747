package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSSyncer 使用 cos-go-sdk-v5 把图片覆盖上传到存储桶
type COSSyncer struct {
	client *cos.Client
	prefix string
}

// NewCOSSyncer bucketURL 形如 https://bucket-appid.cos.ap-guangzhou.myqcloud.com[/prefix]
func NewCOSSyncer(bucketURL, secretID, secretKey string) (*COSSyncer, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket url %s: %w", bucketURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid bucket url %q", bucketURL)
	}
	baseURL := &cos.BaseURL{
		BucketURL: &url.URL{Scheme: u.Scheme, Host: u.Host},
	}
	client := cos.NewClient(baseURL, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
	return &COSSyncer{client: client, prefix: strings.Trim(u.Path, "/")}, nil
}

// Sync 上传本地文件到 key（相对于桶地址中的前缀）
func (s *COSSyncer) Sync(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	if _, err := s.client.Object.Put(ctx, key, f, nil); err != nil {
		return fmt.Errorf("upload to cos: %w", err)
	}
	return nil
}
