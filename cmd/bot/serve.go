package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"referral-bot/internal/bot"
	"referral-bot/internal/conversation"
	"referral-bot/internal/database"
	"referral-bot/internal/ledger"
	"referral-bot/internal/lock"
	"referral-bot/internal/notify"
	"referral-bot/internal/presenter"
	"referral-bot/internal/referral"
	"referral-bot/internal/session"
	"referral-bot/internal/utils"
	"referral-bot/internal/web"
	"referral-bot/internal/worker"
)

// lockTTL bounds how long a crashed replica can hold a user's redis lock.
const lockTTL = 30 * time.Second

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, HTTP endpoints and the admin report",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger := a.cfg, a.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	if cfg.GroupID == 0 || cfg.GroupLink == "" {
		return errors.New("GROUP_ID and GROUP_LINK must be set")
	}
	allowed, err := utils.ParseCIDRs(cfg.AdminAllowedCIDRs)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(db)
	store := ledger.NewGormStore(db)

	var (
		rdb      *redis.Client
		locker   lock.Locker               = lock.NewLocal()
		sessions conversation.SessionStore = session.NewMemory()
		checks   []web.Check
	)
	if cfg.RedisEnabled() {
		rdb, err = database.ConnectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, lockTTL)
		sessions = session.NewRedis(rdb, cfg.SessionTTL)
		checks = append(checks, web.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		logger.Info("Redis not configured, using in-process locks and sessions")
	}

	client, err := bot.NewClient(cfg.BotToken, logger)
	if err != nil {
		return err
	}
	username := cfg.BotUsername
	if username == "" {
		if username, err = bot.Username(ctx, client); err != nil {
			return err
		}
	}

	view := presenter.New(cfg.GroupLink, cfg.AdminContact)
	messenger := bot.NewMessenger(client)
	engine := referral.NewEngine(store, notify.New(messenger, view, cfg.NotifyTimeout, logger), logger)
	controller := conversation.NewController(engine, bot.NewGroupMembership(client, cfg.GroupID), sessions, locker, conversation.Options{
		BotUsername:       username,
		MembershipTimeout: cfg.MembershipTimeout,
		LockTimeout:       cfg.LockTimeout,
	}, logger)

	telegram := bot.New(client, controller, view, logger)
	server := web.NewServer(store, engine, username, allowed, logger, checks...)
	reporter := worker.NewReporter(store, rdb, messenger, view, cfg.AdminID, logger)

	logger.Info("Service started", zap.String("bot", username))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return telegram.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx, cfg.HTTPAddr) })
	g.Go(func() error { return reporter.Start(ctx, cfg.ReportCron) })

	err = g.Wait()
	logger.Info("Service stopped")
	return err
}
