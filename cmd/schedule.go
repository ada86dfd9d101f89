package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/pucklab/nhl-reversion/internal/schedule"
	"github.com/pucklab/nhl-reversion/pkg/cache"
	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "List upcoming games from the NHL schedule API",
	Long:  `Fetches and displays the games the bot would track, for debugging purposes.`,
	RunE:  runSchedule,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringP("date", "d", "", "List games for a specific date (YYYY-MM-DD) instead of upcoming games")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found\n")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	scheduleCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	client := schedule.New(schedule.Config{
		BaseURL: cfg.NHLScheduleURL,
		Timeout: cfg.FetchTimeout,
		Cache:   scheduleCache,
		Logger:  logger,
	})

	date, _ := cmd.Flags().GetString("date")

	now := time.Now()
	fixtures, err := fetchFixtures(ctx, client, date, now)
	if err != nil {
		return err
	}

	if len(fixtures) == 0 {
		fmt.Println("No upcoming games found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Matchup", "Start (UTC)", "Starts In")

	for _, f := range fixtures {
		startsIn := "started"
		if until := time.Until(f.StartTime); until > 0 {
			startsIn = until.Round(time.Minute).String()
		}
		table.Append(
			f.ID,
			f.Matchup(),
			f.StartTime.UTC().Format("2006-01-02 15:04"),
			startsIn,
		)
	}

	return table.Render()
}

func fetchFixtures(ctx context.Context, client *schedule.Client, date string, now time.Time) ([]*types.Fixture, error) {
	if date == "" {
		fixtures, err := client.UpcomingFixtures(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("fetch upcoming fixtures: %w", err)
		}
		return fixtures, nil
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	fixtures, err := client.GamesOn(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	return fixtures, nil
}
