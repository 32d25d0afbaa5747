package services

import (
	"context"

	"github.com/hankmor/mymedia/tools/wechat-publisher/wechat"
)

// WeChatUploader 上传图片为公众号永久素材
type WeChatUploader struct {
	client *wechat.Client
}

func NewWeChatUploader(client *wechat.Client) *WeChatUploader {
	return &WeChatUploader{client: client}
}

// Upload 上传到公众号素材库
// filename: 带扩展名的文件名，公众号根据扩展名判断格式
func (u *WeChatUploader) Upload(ctx context.Context, filename string, data []byte) (Asset, error) {
	media, err := u.client.UploadImage(ctx, filename, data)
	if err != nil {
		return Asset{}, err
	}
	return Asset{MediaID: media.MediaID, URL: media.URL}, nil
}
