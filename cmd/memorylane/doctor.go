package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"memorylane/internal/channel"
	"memorylane/internal/config"
	"memorylane/internal/memory"
	"memorylane/internal/provider"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bot's configuration",
		Long: `Verifies the configuration, Slack and Replicate credentials, the history
database and the listen port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("memorylane doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0

			cfg, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\n0 passed, 1 failed\n")
				return fmt.Errorf("config invalid")
			}
			source := "defaults + environment"
			if configPath != "" {
				source = configPath + " + environment"
			}
			printPass("Config", source)
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			// Slack
			if cfg.Slack.BotToken == "" {
				printFail("Slack token", "SLACK_BOT_TOKEN is not set")
				failed++
			} else {
				s := channel.NewSlack(channel.SlackConfig{BotToken: cfg.Slack.BotToken, APIURL: cfg.Slack.APIURL, Logger: logger})
				if resp, err := s.AuthTest(ctx); err != nil {
					printFail("Slack auth", err.Error())
					failed++
				} else {
					printPass("Slack auth", fmt.Sprintf("@%s (%s) in %s", resp.User, resp.UserID, resp.Team))
					passed++
				}
			}
			if cfg.Slack.SigningSecret == "" {
				printWarn("Signing secret", "not set, event signatures will not be verified")
				warned++
			} else {
				printPass("Signing secret", "configured")
				passed++
			}

			// Replicate
			if cfg.Replicate.APIToken == "" {
				printFail("Replicate token", "REPLICATE_API_TOKEN is not set")
				failed++
			} else {
				r := provider.NewReplicate(provider.ReplicateConfig{Token: cfg.Replicate.APIToken, APIBase: cfg.Replicate.APIBase, Logger: logger})
				if err := r.Healthy(ctx); err != nil {
					printFail("Replicate auth", err.Error())
					failed++
				} else {
					printPass("Replicate auth", cfg.Replicate.Model)
					passed++
				}
			}

			// History database
			if cfg.History.Enabled {
				if err := checkDatabase(ctx, cfg.History.DBPath); err != nil {
					printFail("History DB", err.Error())
					failed++
				} else {
					printPass("History DB", cfg.History.DBPath)
					passed++
				}
			} else {
				printWarn("History DB", "disabled")
				warned++
			}

			if err := checkPort(cfg.Server.Addr()); err != nil {
				printWarn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				warned++
			} else {
				printPass("Listen address", cfg.Server.Addr()+" available")
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running memorylane.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nmemorylane should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! memorylane is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(ctx context.Context, dbPath string) error {
	store, err := memory.NewSQLiteStore(config.ExpandPath(dbPath), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
