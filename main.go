package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hankmor/mymedia/tools/wechat-publisher/config"
	"github.com/hankmor/mymedia/tools/wechat-publisher/services"
)

var (
	configFile string
	logLevel   string
	dateFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "wechat-publisher",
	Short: "Publish dated markdown blog posts to a WeChat Official Account",
	Long: `wechat-publisher selects the posts whose frontmatter date matches the
target date (today by default), rewrites their local images and either
submits them to the WeChat Official Account draft box or writes processed
standalone markdown copies.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./wechat-publisher.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dateFlag, "date", "", "target date in YYYY-MM-DD format (default: today)")

	rootCmd.AddCommand(publishCmd, processCmd, previewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，配置错误在处理任何文章之前返回
func loadConfig(requireCredentials bool) (*config.Config, *logrus.Entry, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(requireCredentials); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// newLogger 每次运行带上 run id，方便在日志里区分
func newLogger(c config.Log) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %v", config.ErrInvalid, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(c.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w: unsupported log format %q", config.ErrInvalid, c.Format)
	}

	return logger.WithField("run", uuid.NewString()[:8]), nil
}

// targetDate 解析 --date，默认今天
func targetDate() (time.Time, error) {
	if dateFlag == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	t, err := time.ParseInLocation("2006-01-02", dateFlag, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", dateFlag)
	}
	return t, nil
}

func newSelector(cfg *config.Config, log logrus.FieldLogger) *services.Selector {
	return services.NewSelector(cfg.SubdirPaths(), log)
}

func newAssembler(cfg *config.Config) *services.Assembler {
	style := ""
	if cfg.Highlight.Enabled {
		style = cfg.Highlight.Style
	}
	return services.NewAssembler(cfg.Footer, style)
}
