package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hankmor/mymedia/tools/wechat-publisher/config"
	"github.com/hankmor/mymedia/tools/wechat-publisher/services"
	"github.com/hankmor/mymedia/tools/wechat-publisher/wechat"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the posts dated today (or --date) to the WeChat draft box",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := targetDate()
		if err != nil {
			return err
		}
		cfg, log, err := loadConfig(true)
		if err != nil {
			return err
		}

		stack, err := newPublishStack(cfg, log)
		if err != nil {
			return err
		}
		defer stack.Close()

		// 启动时先取一次 token，凭证错误直接退出
		ctx := cmd.Context()
		if err := stack.grantToken(ctx); err != nil {
			return err
		}

		report, err := stack.publisher.Run(ctx, date)
		if err != nil {
			return err
		}

		for _, item := range report.Selection.Failures() {
			fmt.Printf("skipped %s: %s\n", item.Path, item.Reason)
		}
		for _, res := range report.Results {
			if res.Err != nil {
				fmt.Printf("FAILED  %s: %v\n", res.Title, res.Err)
				continue
			}
			fmt.Printf("OK      %s (draft %s, %d images uploaded)\n", res.Title, res.DraftID, res.Uploaded)
		}

		if n := report.Failed(); n > 0 {
			return fmt.Errorf("%d of %d posts failed to publish", n, len(report.Results))
		}
		return nil
	},
}

// publishStack 发布需要的缓存、客户端、重试策略，publish 命令和预览页共用
type publishStack struct {
	client    *wechat.Client
	retry     *services.RetryPolicy
	cache     *services.UploadCache
	publisher *services.Publisher
}

func newPublishStack(cfg *config.Config, log *logrus.Entry) (*publishStack, error) {
	store, err := services.OpenCacheStore(cfg.CacheDriver, cfg.CacheFile, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	cache := services.NewUploadCache(store, log.WithField("component", "cache"))

	client := wechat.NewClient(cfg.AppID, cfg.AppSecret, wechat.WithBaseURL(cfg.APIBaseURL))
	retry := services.NewRetryPolicy(cfg.Retry.Attempts, services.LinearBackoff(cfg.Retry.Delay), log)
	rewriter := services.NewUploadRewriter(services.NewWeChatUploader(client), cache, retry, cfg.MaxImageWidth, log)

	return &publishStack{
		client:    client,
		retry:     retry,
		cache:     cache,
		publisher: services.NewPublisher(cfg, newSelector(cfg, log), rewriter, newAssembler(cfg), client, retry, log),
	}, nil
}

func (s *publishStack) grantToken(ctx context.Context) error {
	return s.retry.Do(ctx, "grant token", func(ctx context.Context) error {
		_, err := s.client.Token(ctx)
		return err
	})
}

func (s *publishStack) Close() error {
	return s.cache.Close()
}
