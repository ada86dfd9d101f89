package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "nhl-reversion",
	Short: "NHL favorite mean-reversion bot",
	Long: `Checkpoint-driven trading bot for NHL binary outcome markets.

The bot tracks each game across a pre-game checkpoint ladder, identifies
the favorite, pre-places a ladder of limit orders below the opening price,
and trades the bounce inside a fixed in-game window. Every position is
closed by the time the window ends.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
