package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pucklab/nhl-reversion/internal/marketdata"
	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchCmd = &cobra.Command{
	Use:   "watch <market-ticker> [market-ticker...]",
	Short: "Stream live quotes for one or more markets",
	Long: `Subscribes to the venue's websocket quote stream and prints every
update until interrupted, for debugging purposes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := marketdata.NewStream(marketdata.StreamConfig{
		URL:               cfg.KalshiWSURL,
		InitialDelay:      cfg.StreamReconnectInitial,
		MaxDelay:          cfg.StreamReconnectMax,
		BackoffMultiplier: cfg.StreamReconnectBackoff,
		Logger:            logger,
	})
	stream.Subscribe(args...)
	stream.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Watching %d market(s); Ctrl-C to stop.\n", len(args))

	for {
		select {
		case quote, ok := <-stream.Updates():
			if !ok {
				return nil
			}
			fmt.Printf("%s  bid=%d¢ ask=%d¢ last=%d¢ volume=%d\n",
				quote.Ticker, quote.YesBidCents, quote.YesAskCents, quote.LastCents, quote.Volume)
		case <-sigChan:
			cancel()
			stream.Close()
			return nil
		}
	}
}
