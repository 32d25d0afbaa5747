package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hankmor/mymedia/tools/wechat-publisher/services"
)

var (
	outputDir  string
	syncImages bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Write processed standalone markdown copies of the posts dated today (or --date)",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := targetDate()
		if err != nil {
			return err
		}
		cfg, log, err := loadConfig(false)
		if err != nil {
			return err
		}

		var syncer services.ImageSyncer
		if syncImages {
			if cfg.COS.BucketURL == "" || cfg.COS.SecretID == "" || cfg.COS.SecretKey == "" {
				return fmt.Errorf("--sync-images requires cos.bucket_url, TENCENT_CLOUD_SECRET_ID and TENCENT_CLOUD_SECRET_KEY")
			}
			cs, err := services.NewCOSSyncer(cfg.COS.BucketURL, cfg.COS.SecretID, cfg.COS.SecretKey)
			if err != nil {
				return err
			}
			syncer = cs
		}

		rewriter := services.NewURLRewriter(cfg.ImageBaseURL, cfg.LocalImagePatterns)
		processor, err := services.NewProcessor(newSelector(cfg, log), rewriter, cfg.Footer, outputDir, syncer, log)
		if err != nil {
			return err
		}

		results, err := processor.Run(cmd.Context(), date)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Printf("No blog files found for date: %s\n", date.Format("2006-01-02"))
			return nil
		}

		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Printf("FAILED  %s: %v\n", res.Source, res.Err)
				continue
			}
			fmt.Printf("Processed %s -> %s\n", res.Source, res.Output)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d posts failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory for processed files (default: ./processed_blogs, cleaned on each run)")
	processCmd.Flags().BoolVar(&syncImages, "sync-images", false, "upload referenced local images to the configured COS bucket")
}
