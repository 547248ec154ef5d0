package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"referral-bot/internal/ledger"
	"referral-bot/internal/lock"
	"referral-bot/internal/models"
	"referral-bot/internal/referral"
)

// Referrals is the part of the referral engine the controller drives.
type Referrals interface {
	RegisterContact(ctx context.Context, id int64, p ledger.Profile) (*models.User, error)
	LinkReferral(ctx context.Context, newUserID int64, code string) (*models.ReferralEvent, error)
	GetStats(ctx context.Context, userID int64) (referral.Stats, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// MembershipChecker reports whether a user belongs to the gating group.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// SessionStore remembers the last state each user reached.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (string, bool, error)
	Set(ctx context.Context, userID int64, state string) error
}

type Options struct {
	// BotUsername is used to build referral links.
	BotUsername       string
	MembershipTimeout time.Duration
	LockTimeout       time.Duration
}

type Controller struct {
	referrals  Referrals
	membership MembershipChecker
	sessions   SessionStore
	locker     lock.Locker
	opts       Options
	logger     *zap.Logger
}

func NewController(referrals Referrals, membership MembershipChecker, sessions SessionStore, locker lock.Locker, opts Options, logger *zap.Logger) *Controller {
	return &Controller{
		referrals:  referrals,
		membership: membership,
		sessions:   sessions,
		locker:     locker,
		opts:       opts,
		logger:     logger.Named("conversation"),
	}
}

// ReferralLink is the deep link that starts the bot with code as argument.
func ReferralLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
}

// Handle processes one action. Actions of the same user are serialized.
// Failures never escape: they are logged and rendered as ViewError with the
// state left as it was, or AwaitingGroupMembership when none was remembered.
func (c *Controller) Handle(ctx context.Context, in Input) Result {
	unlock, err := c.lock(ctx, in.UserID)
	if err != nil {
		c.logger.Error("Could not lock user", zap.Int64("user_id", in.UserID), zap.Error(err))
		return failed(fallback(c.load(ctx, in.UserID)))
	}
	defer unlock()

	prev, known := c.load(ctx, in.UserID)
	res, err := c.dispatch(ctx, prev, known, in)
	if err != nil {
		c.logger.Error("Request failed",
			zap.Int64("user_id", in.UserID),
			zap.Int("kind", int(in.Kind)),
			zap.String("arg", in.Arg),
			zap.Error(err))
		return failed(fallback(prev, known))
	}
	if res.Ignored {
		return res
	}

	if err := c.sessions.Set(ctx, in.UserID, string(res.State)); err != nil {
		c.logger.Warn("Could not save session", zap.Int64("user_id", in.UserID), zap.Error(err))
	}
	return res
}

func (c *Controller) lock(ctx context.Context, userID int64) (func(), error) {
	if c.opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.LockTimeout)
		defer cancel()
	}
	return c.locker.Lock(ctx, fmt.Sprintf("user:%d", userID))
}

func (c *Controller) load(ctx context.Context, userID int64) (State, bool) {
	raw, ok, err := c.sessions.Get(ctx, userID)
	if err != nil {
		c.logger.Warn("Could not load session", zap.Int64("user_id", userID), zap.Error(err))
		return "", false
	}
	state := State(raw)
	if !ok || !state.valid() {
		return "", false
	}
	return state, true
}

func (c *Controller) dispatch(ctx context.Context, state State, known bool, in Input) (Result, error) {
	switch in.Kind {
	case Start:
		return c.enter(ctx, in, in.Arg)
	case Cancel:
		return c.cancel(ctx, in)
	case Text:
		return c.enter(ctx, in, "")
	case Select:
		if !known {
			// Nothing remembered: the user may never have been seen, and the
			// state comes from live membership.
			if _, err := c.referrals.RegisterContact(ctx, in.UserID, in.Profile); err != nil {
				return Result{}, err
			}
			state = AwaitingGroupMembership
			if c.isMember(ctx, in.UserID) {
				state = MainMenu
			}
		}
		return c.selectAction(ctx, state, in)
	}
	return ignored(fallback(state, known)), nil
}

// fallback is the state reported when nothing usable is remembered.
func fallback(state State, known bool) State {
	if !known {
		return AwaitingGroupMembership
	}
	return state
}

func (c *Controller) enter(ctx context.Context, in Input, code string) (Result, error) {
	if _, err := c.referrals.RegisterContact(ctx, in.UserID, in.Profile); err != nil {
		return Result{}, err
	}
	if code = strings.TrimSpace(code); code != "" {
		if _, err := c.referrals.LinkReferral(ctx, in.UserID, code); err != nil {
			return Result{}, err
		}
	}

	if !c.isMember(ctx, in.UserID) {
		return show(AwaitingGroupMembership, Render{View: ViewJoinPrompt}), nil
	}
	menu, err := c.menu(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return show(MainMenu, menu), nil
}

func (c *Controller) cancel(ctx context.Context, in Input) (Result, error) {
	if _, err := c.referrals.RegisterContact(ctx, in.UserID, in.Profile); err != nil {
		return Result{}, err
	}
	menu, err := c.menu(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return show(MainMenu, Render{View: ViewCancelled}, menu), nil
}

func (c *Controller) selectAction(ctx context.Context, state State, in Input) (Result, error) {
	sel := in.Arg

	switch state {
	case AwaitingGroupMembership:
		if sel != SelectJoined {
			break
		}
		if !c.isMember(ctx, in.UserID) {
			return show(state, Render{View: ViewNotJoined}), nil
		}
		menu, err := c.menu(ctx, in)
		if err != nil {
			return Result{}, err
		}
		return show(MainMenu, Render{View: ViewJoined}, menu), nil

	case MainMenu:
		switch sel {
		case SelectBalance:
			return c.balance(ctx, in)
		case SelectReferralInfo:
			return c.referralInfo(ctx, in)
		case SelectReferralLink:
			return c.referralLink(ctx, in)
		case SelectWithdraw:
			return c.withdrawOptions(ctx, in)
		case SelectEarningGuide:
			return show(EarningGuide, Render{View: ViewEarningGuide, Payload: Payload{
				Reward:        referral.Reward,
				MinWithdrawal: referral.MinWithdrawal,
			}}), nil
		case SelectBack:
			return c.backToMenu(ctx, in)
		}

	case WithdrawMenu:
		if method, ok := withdrawalMethod(sel); ok {
			return show(WithdrawMenu, Render{View: ViewWithdrawInstructions, Payload: Payload{Method: method}}), nil
		}
		switch sel {
		case SelectWithdraw:
			return c.withdrawOptions(ctx, in)
		case SelectBack:
			return c.backToMenu(ctx, in)
		}

	case EarningGuide:
		if sel == SelectBack {
			return c.backToMenu(ctx, in)
		}
	}

	c.logger.Debug("Ignoring selection",
		zap.Int64("user_id", in.UserID),
		zap.String("state", string(state)),
		zap.String("selection", sel))
	return ignored(state), nil
}

func (c *Controller) menu(ctx context.Context, in Input) (Render, error) {
	stats, err := c.referrals.GetStats(ctx, in.UserID)
	if err != nil {
		return Render{}, err
	}
	balance, err := c.referrals.GetBalance(ctx, in.UserID)
	if err != nil {
		return Render{}, err
	}
	return Render{View: ViewMenu, Payload: Payload{
		DisplayName: displayName(in.Profile),
		Balance:     balance,
		Stats:       stats,
	}}, nil
}

func (c *Controller) backToMenu(ctx context.Context, in Input) (Result, error) {
	menu, err := c.menu(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return show(MainMenu, menu), nil
}

func (c *Controller) balance(ctx context.Context, in Input) (Result, error) {
	balance, err := c.referrals.GetBalance(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	return show(MainMenu, Render{View: ViewBalance, Payload: Payload{Balance: balance}}), nil
}

func (c *Controller) referralInfo(ctx context.Context, in Input) (Result, error) {
	stats, err := c.referrals.GetStats(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	return show(MainMenu, Render{View: ViewReferralInfo, Payload: Payload{Stats: stats}}), nil
}

func (c *Controller) referralLink(ctx context.Context, in Input) (Result, error) {
	stats, err := c.referrals.GetStats(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	return show(MainMenu, Render{View: ViewReferralLink, Payload: Payload{
		Stats:        stats,
		ReferralLink: ReferralLink(c.opts.BotUsername, stats.ReferralCode),
	}}), nil
}

func (c *Controller) withdrawOptions(ctx context.Context, in Input) (Result, error) {
	balance, err := c.referrals.GetBalance(ctx, in.UserID)
	if err != nil {
		return Result{}, err
	}
	return show(WithdrawMenu, Render{View: ViewWithdrawOptions, Payload: Payload{
		Balance:       balance,
		MinWithdrawal: referral.MinWithdrawal,
	}}), nil
}

// isMember fails closed: errors and timeouts count as "not a member".
func (c *Controller) isMember(ctx context.Context, userID int64) bool {
	if c.opts.MembershipTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.MembershipTimeout)
		defer cancel()
	}
	ok, err := c.membership.IsMember(ctx, userID)
	if err != nil {
		c.logger.Warn("Membership check failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

func show(state State, renders ...Render) Result {
	return Result{State: state, Renders: renders}
}

func ignored(state State) Result {
	return Result{State: state, Ignored: true}
}

func failed(state State) Result {
	return Result{State: state, Renders: []Render{{View: ViewError}}}
}

func displayName(p ledger.Profile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}
