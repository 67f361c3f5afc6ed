package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"memorylane/internal/domain"
	"memorylane/internal/memory"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int
	var user string
	var stats bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent generations from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				logger.Warn("history is disabled (HISTORY_ENABLED=false); reading the database anyway", "path", cfg.History.DBPath)
			}
			store, err := memory.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			if stats {
				counts, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				for _, c := range counts {
					fmt.Printf("%-10s %d\n", c.Status, c.Count)
				}
				return nil
			}

			var outcomes []domain.DeliveryOutcome
			if user != "" {
				outcomes, err = store.ListByUser(ctx, user, limit)
			} else {
				outcomes, err = store.ListRecent(ctx, limit)
			}
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Println("no generations recorded")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tUSER\tCHANNEL\tDURATION\tPROMPT\tRESULT")
			for _, o := range outcomes {
				result := o.ImageURL
				if o.Status == domain.OutcomeFailed {
					result = o.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.CreatedAt.Format(time.DateTime), o.Status, o.User, o.Channel,
					o.Duration.Round(100*time.Millisecond), o.Prompt, result)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&user, "user", "", "only show generations requested by this Slack user ID")
	cmd.Flags().BoolVar(&stats, "stats", false, "print counts per status instead of entries")
	return cmd
}
