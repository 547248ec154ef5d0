package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"referral-bot/internal/config"
	"referral-bot/internal/logging"
)

// app holds what every command needs once flags and environment are read.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "referral-bot",
		Short: "Telegram referral reward bot",
		Long: `Telegram bot that gates access behind group membership and credits
users for every friend they refer.

Commands:
  serve   - run the bot, HTTP endpoints and the admin report (default)
  migrate - apply database migrations
  stats   - print a user's referral stats
  adjust  - change a user's balance`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runServe,
	}

	rootCmd.AddCommand(a.serveCmd(), a.migrateCmd(), a.statsCmd(), a.adjustCmd())
	return rootCmd
}

func (a *app) load(*cobra.Command, []string) error {
	a.cfg = config.LoadConfig()
	logger, err := logging.New(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
