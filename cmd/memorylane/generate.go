package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"memorylane/internal/provider"

	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	var raw bool
	var out string
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate one image and print its URL",
		Long: `Runs a single generation outside Slack. The prompt is augmented with the
trigger word and derived age unless --raw is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Replicate.APIToken == "" {
				return fmt.Errorf("REPLICATE_API_TOKEN is not set")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			orch := newOrchestrator(cfg)
			prompt := strings.Join(args, " ")
			generate := orch.Generate
			if raw {
				generate = orch.GenerateRaw
			}
			res, err := generate(ctx, prompt)
			if err != nil {
				return err
			}
			logger.Info("generated", "prompt", res.EnhancedPrompt, "prediction", res.PredictionID)
			fmt.Println(res.ImageURL)

			if out != "" {
				data, err := provider.NewDownloader(nil).Fetch(ctx, res.ImageURL)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				logger.Info("image saved", "path", out, "bytes", len(data))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "send the prompt as-is, without trigger word or age")
	cmd.Flags().StringVarP(&out, "output", "o", "", "also download the image to this file")
	return cmd
}
