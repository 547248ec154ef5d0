package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-bot/internal/models"
)

const maxCodeAttempts = 5

// CodeGenerator returns a candidate referral code.
type CodeGenerator func() string

// NewCode returns the first eight hex characters of a random UUID, upper-cased.
func NewCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

type Option func(*GormStore)

// WithCodeGenerator replaces the referral code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *GormStore) { s.newCode = gen }
}

// GormStore implements Store on top of gorm. The same type serves both the
// root handle and transaction-bound handles handed out by Transact.
type GormStore struct {
	db      *gorm.DB
	newCode CodeGenerator
}

func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{db: db, newCode: NewCode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("user_id = ?", id).First(&user).Error; err != nil {
		return nil, wrapNotFound(err, "get user %d", id)
	}
	return &user, nil
}

func (s *GormStore) FindByCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error; err != nil {
		return nil, wrapNotFound(err, "find referral code %q", code)
	}
	return &user, nil
}

func (s *GormStore) CreateUserIfAbsent(ctx context.Context, id int64, p Profile) (*models.User, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		user := models.User{
			UserID:       id,
			Username:     p.Username,
			DisplayName:  p.DisplayName,
			ReferralCode: s.newCode(),
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
		if res.Error != nil {
			return nil, fmt.Errorf("create user %d: %w", id, res.Error)
		}
		if res.RowsAffected == 1 {
			return s.GetUser(ctx, id)
		}

		// Nothing inserted: either the user exists or the code collided.
		existing, err := s.GetUser(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.refreshProfile(ctx, existing, p)
	}
	return nil, fmt.Errorf("create user %d: %w", id, ErrCodeExhausted)
}

func (s *GormStore) refreshProfile(ctx context.Context, user *models.User, p Profile) (*models.User, error) {
	if user.Username == p.Username && user.DisplayName == p.DisplayName {
		return user, nil
	}
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", user.UserID).
		Updates(map[string]any{"username": p.Username, "display_name": p.DisplayName}).Error
	if err != nil {
		return nil, fmt.Errorf("update profile of user %d: %w", user.UserID, err)
	}
	user.Username = p.Username
	user.DisplayName = p.DisplayName
	return user, nil
}

func (s *GormStore) AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var row struct {
		Balance decimal.Decimal
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("user_id = ?", id).
			Update("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.User{}).Select("balance").Where("user_id = ?", id).Scan(&row).Error
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust balance of user %d: %w", id, err)
	}
	return row.Balance, nil
}

func (s *GormStore) SetReferredBy(ctx context.Context, id int64, code string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ? AND referred_by IS NULL", id).
		Update("referred_by", code)
	if res.Error != nil {
		return false, fmt.Errorf("set referrer of user %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) AppendReferralEvent(ctx context.Context, referrerID, referredID int64, amount decimal.Decimal) (*models.ReferralEvent, error) {
	event := models.ReferralEvent{
		ReferrerID: referrerID,
		ReferredID: referredID,
		Amount:     amount,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, fmt.Errorf("record referral %d->%d: %w", referrerID, referredID, err)
	}
	return &event, nil
}

func (s *GormStore) AggregateFor(ctx context.Context, referrerID int64) (Aggregate, error) {
	var row struct {
		Count int64
		Total decimal.NullDecimal
	}
	err := s.db.WithContext(ctx).Model(&models.ReferralEvent{}).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Where("referrer_id = ?", referrerID).
		Scan(&row).Error
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregate referrals of user %d: %w", referrerID, err)
	}
	return Aggregate{Count: row.Count, Total: orZero(row.Total)}, nil
}

func (s *GormStore) Totals(ctx context.Context, since time.Time) (Totals, error) {
	db := s.db.WithContext(ctx)

	var users struct {
		Users       int64
		Outstanding decimal.NullDecimal
	}
	if err := db.Model(&models.User{}).Select("COUNT(*) AS users, SUM(balance) AS outstanding").Scan(&users).Error; err != nil {
		return Totals{}, fmt.Errorf("count users: %w", err)
	}

	var newUsers int64
	if err := db.Model(&models.User{}).Where("created_at >= ?", since).Count(&newUsers).Error; err != nil {
		return Totals{}, fmt.Errorf("count new users: %w", err)
	}

	var events struct {
		Referrals int64
		Paid      decimal.NullDecimal
	}
	if err := db.Model(&models.ReferralEvent{}).Select("COUNT(*) AS referrals, SUM(amount) AS paid").Scan(&events).Error; err != nil {
		return Totals{}, fmt.Errorf("count referrals: %w", err)
	}

	return Totals{
		Users:       users.Users,
		NewUsers:    newUsers,
		Referrals:   events.Referrals,
		RewardsPaid: orZero(events.Paid),
		Outstanding: orZero(users.Outstanding),
	}, nil
}

func (s *GormStore) Transact(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, newCode: s.newCode})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
