package main

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"referral-bot/internal/database"
	"referral-bot/internal/ledger"
	"referral-bot/internal/presenter"
	"referral-bot/internal/referral"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Connect(a.cfg, a.logger)
			if err != nil {
				return err
			}
			closeDB(db)
			a.logger.Info("Migrations applied")
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user_id>",
		Short: "Print a user's referral stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			engine, done, err := a.openEngine()
			if err != nil {
				return err
			}
			defer done()

			stats, err := engine.GetStats(cmd.Context(), userID)
			if err != nil {
				return err
			}
			balance, err := engine.GetBalance(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:            %d\n", userID)
			fmt.Fprintf(out, "Referral code:   %s\n", stats.ReferralCode)
			fmt.Fprintf(out, "Total referrals: %d\n", stats.TotalReferrals)
			fmt.Fprintf(out, "Total earnings:  %s\n", presenter.Money(stats.TotalEarnings))
			fmt.Fprintf(out, "Balance:         %s\n", presenter.Money(balance))
			return nil
		},
	}
}

func (a *app) adjustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <user_id> <delta>",
		Short: "Change a user's balance, e.g. after a processed withdrawal",
		Long: `Adds delta to the user's balance. Use a negative delta to record a
withdrawal, for example:

  referral-bot adjust 123456789 -10.00`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			delta, err := parseDelta(args[1])
			if err != nil {
				return err
			}
			engine, done, err := a.openEngine()
			if err != nil {
				return err
			}
			defer done()

			balance, err := engine.AdjustBalance(cmd.Context(), userID, delta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "New balance of %d: %s\n", userID, presenter.Money(balance))
			return nil
		},
	}
}

func (a *app) openEngine() (*referral.Engine, func(), error) {
	db, err := database.Connect(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	engine := referral.NewEngine(ledger.NewGormStore(db), nil, a.logger)
	return engine, func() { closeDB(db) }, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// parseDelta accepts non-zero amounts with at most two decimal places.
func parseDelta(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(2)) {
		return decimal.Zero, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	if d.IsZero() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must not be zero", s)
	}
	return d, nil
}
