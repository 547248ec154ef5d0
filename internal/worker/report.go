package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"referral-bot/internal/ledger"
)

const reportKeyTTL = 48 * time.Hour

type Messenger interface {
	Send(ctx context.Context, userID int64, text string) error
}

type ReportFormatter interface {
	AdminReport(day time.Time, t ledger.Totals) string
}

// Reporter sends the admin a daily ledger summary.
type Reporter struct {
	store     ledger.Store
	redis     *redis.Client
	messenger Messenger
	format    ReportFormatter
	adminID   int64
	now       func() time.Time
	logger    *zap.Logger
}

// NewReporter creates a reporter. rdb may be nil; without it every run sends
// a report.
func NewReporter(store ledger.Store, rdb *redis.Client, messenger Messenger, format ReportFormatter, adminID int64, logger *zap.Logger) *Reporter {
	return &Reporter{
		store:     store,
		redis:     rdb,
		messenger: messenger,
		format:    format,
		adminID:   adminID,
		now:       time.Now,
		logger:    logger.Named("report"),
	}
}

// Start runs the report on the cron schedule (UTC) until ctx is done.
func (r *Reporter) Start(ctx context.Context, schedule string) error {
	if r.adminID == 0 {
		r.logger.Info("Admin report disabled, no admin configured")
		<-ctx.Done()
		return nil
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("Admin report failed", zap.Error(err))
			}
		}),
		gocron.WithName("admin-report"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule admin report %q: %w", schedule, err)
	}

	s.Start()
	r.logger.Info("Admin report scheduled", zap.String("cron", schedule))

	<-ctx.Done()
	return s.Shutdown()
}

// Run sends one report unless another run already sent today's. It reports
// whether a message went out.
func (r *Reporter) Run(ctx context.Context) (bool, error) {
	if r.adminID == 0 {
		return false, nil
	}
	day := r.now().UTC()

	key := "report:" + day.Format(time.DateOnly)
	if r.redis != nil {
		claimed, err := r.redis.SetNX(ctx, key, day.Format(time.RFC3339), reportKeyTTL).Result()
		if err != nil {
			return false, fmt.Errorf("claim %s: %w", key, err)
		}
		if !claimed {
			r.logger.Debug("Report already sent", zap.String("key", key))
			return false, nil
		}
	}

	totals, err := r.store.Totals(ctx, day.Add(-24*time.Hour))
	if err != nil {
		r.release(ctx, key)
		return false, err
	}
	if err := r.messenger.Send(ctx, r.adminID, r.format.AdminReport(day, totals)); err != nil {
		r.release(ctx, key)
		return false, fmt.Errorf("send report: %w", err)
	}

	r.logger.Info("Admin report sent",
		zap.Int64("users", totals.Users),
		zap.Int64("referrals", totals.Referrals))
	return true, nil
}

// release drops the claim so a later run can retry.
func (r *Reporter) release(ctx context.Context, key string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("Could not release report claim", zap.String("key", key), zap.Error(err))
	}
}
