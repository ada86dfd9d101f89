package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/pucklab/nhl-reversion/internal/marketdata"
	"github.com/pucklab/nhl-reversion/pkg/cache"
	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets <event-ticker>",
	Short: "List the markets under one game event",
	Long: `Fetches the venue markets for a game event and shows their current
quotes, for debugging purposes. Event tickers look like
KXNHLGAME-25NOV01TORBOS.`,
	Args: cobra.ExactArgs(1),
	RunE: runMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)
}

func runMarkets(cmd *cobra.Command, args []string) error {
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

	marketCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	client := marketdata.New(marketdata.Config{
		BaseURL:      cfg.KalshiAPIURL,
		SeriesTicker: cfg.SeriesTicker,
		Timeout:      cfg.FetchTimeout,
		Cache:        marketCache,
		Logger:       logger,
	})

	eventTicker := args[0]
	markets, err := client.ListEventMarkets(ctx, eventTicker)
	if err != nil {
		return fmt.Errorf("list event markets: %w", err)
	}

	if len(markets) == 0 {
		fmt.Println("No markets found for event.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Ticker", "Title", "Bid", "Ask", "Last", "Volume")

	for _, m := range markets {
		quote, err := client.FetchQuote(ctx, m.Ticker)
		if err != nil {
			table.Append(m.Ticker, m.Title, "-", "-", "-", "-")
			continue
		}
		table.Append(
			m.Ticker,
			m.Title,
			fmt.Sprintf("%d¢", quote.YesBidCents),
			fmt.Sprintf("%d¢", quote.YesAskCents),
			fmt.Sprintf("%d¢", quote.LastCents),
			fmt.Sprintf("%d", quote.Volume),
		)
	}

	return table.Render()
}
