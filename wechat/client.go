// Package wechat 公众号接口的最小客户端：获取 access_token、上传永久图片素材、新建草稿
package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const DefaultBaseURL = "https://api.weixin.qq.com"

// token 提前过期的余量
const tokenLeeway = 5 * time.Minute

// ErrMissingField 接口返回成功但缺少需要的字段
var ErrMissingField = errors.New("wechat: response missing field")

// APIError 接口返回的 errcode / errmsg
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat: errcode=%d errmsg=%s", e.Code, e.Msg)
}

// Media 上传后的素材
type Media struct {
	MediaID string `json:"media_id"`
	URL     string `json:"url"`
}

// Article 草稿中的一篇图文
type Article struct {
	Title              string `json:"title"`
	Author             string `json:"author,omitempty"`
	Digest             string `json:"digest,omitempty"`
	Content            string `json:"content"`
	ContentSourceURL   string `json:"content_source_url,omitempty"`
	ThumbMediaID       string `json:"thumb_media_id"`
	NeedOpenComment    int    `json:"need_open_comment"`
	OnlyFansCanComment int    `json:"only_fans_can_comment"`
}

type Client struct {
	baseURL   string
	appID     string
	appSecret string
	http      *http.Client
	now       func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type Option func(*Client)

// WithHTTPClient 替换默认的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL 替换接口地址，测试时指向 httptest
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func NewClient(appID, appSecret string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		appID:     appID,
		appSecret: appSecret,
		http:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiStatus struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (s apiStatus) err() error {
	if s.ErrCode != 0 {
		return &APIError{Code: s.ErrCode, Msg: s.ErrMsg}
	}
	return nil
}

// Token 获取 access_token，有效期内复用
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		apiStatus
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("grant token: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("grant token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("grant token: %w: access_token", ErrMissingField)
	}

	c.token = resp.AccessToken
	c.expiresAt = c.now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenLeeway)
	return c.token, nil
}

// UploadImage 上传永久图片素材，返回 media_id 和可在正文中引用的 url
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (*Media, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("media", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/cgi-bin/material/add_material?access_token=%s&type=image",
		c.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		apiStatus
		Media
	}
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("upload image %s: %w", filename, err)
	}
	if err := resp.err(); err != nil {
		return nil, fmt.Errorf("upload image %s: %w", filename, err)
	}
	if resp.MediaID == "" {
		return nil, fmt.Errorf("upload image %s: %w: media_id", filename, ErrMissingField)
	}
	return &resp.Media, nil
}

// AddDraft 新建草稿，返回草稿的 media_id
func (c *Client) AddDraft(ctx context.Context, articles []Article) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]any{"articles": articles})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/cgi-bin/draft/add?access_token=%s", c.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		apiStatus
		MediaID string `json:"media_id"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("add draft: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("add draft: %w", err)
	}
	if resp.MediaID == "" {
		return "", fmt.Errorf("add draft: %w: media_id", ErrMissingField)
	}
	return resp.MediaID, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
