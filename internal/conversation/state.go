// Package conversation decides, per user, which actions are valid and what
// each one shows.
package conversation

import (
	"strings"

	"github.com/shopspring/decimal"

	"referral-bot/internal/ledger"
	"referral-bot/internal/referral"
)

type State string

const (
	AwaitingGroupMembership State = "awaiting_group_membership"
	MainMenu                State = "main_menu"
	WithdrawMenu            State = "withdraw_menu"
	EarningGuide            State = "earning_guide"
)

func (s State) valid() bool {
	switch s {
	case AwaitingGroupMembership, MainMenu, WithdrawMenu, EarningGuide:
		return true
	}
	return false
}

type Kind int

const (
	// Start is the entry command; Arg carries an optional referral code.
	Start Kind = iota
	// Text is free text that is not a command.
	Text
	// Select is a menu selection; Arg carries the selection.
	Select
	// Cancel is the explicit cancel command.
	Cancel
)

// Menu selections.
const (
	SelectBalance      = "balance"
	SelectReferralInfo = "referral_info"
	SelectWithdraw     = "withdraw"
	SelectEarningGuide = "earning_guide"
	SelectReferralLink = "my_referral_link"
	SelectBack         = "back_to_menu"
	SelectJoined       = "joined_group"
	withdrawPrefix     = "withdraw_"
)

type WithdrawalMethod struct {
	ID    string
	Label string
}

// WithdrawalMethods lists the payout options in display order.
var WithdrawalMethods = []WithdrawalMethod{
	{ID: "paypal", Label: "PayPal"},
	{ID: "bank", Label: "Bank Transfer"},
	{ID: "crypto", Label: "Crypto"},
}

// SelectWithdrawal returns the selection for a withdrawal method.
func SelectWithdrawal(m WithdrawalMethod) string {
	return withdrawPrefix + m.ID
}

func withdrawalMethod(selection string) (WithdrawalMethod, bool) {
	id, ok := strings.CutPrefix(selection, withdrawPrefix)
	if !ok {
		return WithdrawalMethod{}, false
	}
	for _, m := range WithdrawalMethods {
		if m.ID == id {
			return m, true
		}
	}
	return WithdrawalMethod{}, false
}

// Input is one inbound user action.
type Input struct {
	UserID  int64
	Profile ledger.Profile
	Kind    Kind
	Arg     string
}

type View string

const (
	ViewJoinPrompt           View = "join_prompt"
	ViewNotJoined            View = "not_joined"
	ViewJoined               View = "joined"
	ViewMenu                 View = "menu"
	ViewBalance              View = "balance"
	ViewReferralInfo         View = "referral_info"
	ViewReferralLink         View = "referral_link"
	ViewWithdrawOptions      View = "withdraw_options"
	ViewWithdrawInstructions View = "withdraw_instructions"
	ViewEarningGuide         View = "earning_guide"
	ViewCancelled            View = "cancelled"
	ViewError                View = "error"
)

// Payload carries the data a view needs. Only the fields relevant to the
// view are set.
type Payload struct {
	DisplayName   string
	Balance       decimal.Decimal
	Stats         referral.Stats
	ReferralLink  string
	Method        WithdrawalMethod
	Reward        decimal.Decimal
	MinWithdrawal decimal.Decimal
}

// Render is an abstract rendering instruction for the presentation layer.
type Render struct {
	View    View
	Payload Payload
}

// Result is the outcome of one Handle call. Ignored actions leave the state
// unchanged and render nothing.
type Result struct {
	State   State
	Renders []Render
	Ignored bool
}
