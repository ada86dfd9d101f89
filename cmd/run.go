package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/pucklab/nhl-reversion/internal/app"
	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading bot",
	Long: `Starts the bot, which will:
1. Discover upcoming games from the NHL schedule API
2. Evaluate each game at the 6h, 3h and 30m pre-game checkpoints
3. Pre-place a tier ladder of limit orders on the qualified favorite
4. Trade the bounce inside the in-game window and force-close at its end

Use --dry-run to route orders through the simulated gateway regardless of
the DRY_RUN environment setting.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("dry-run", false, "Force the simulated gateway even with live credentials configured")
}

func runBot(cmd *cobra.Command, args []string) error {
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

	forceDryRun, _ := cmd.Flags().GetBool("dry-run")

	application, err := app.New(cfg, logger, &app.Options{
		ForceDryRun: forceDryRun,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
