package presenter

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-bot/internal/conversation"
	"referral-bot/internal/ledger"
	"referral-bot/internal/referral"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func callbacks(m Message) []string {
	var out []string
	for _, row := range m.Menu {
		for _, b := range row {
			if b.Data != "" {
				out = append(out, b.Data)
			}
		}
	}
	return out
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$5.00", Money(dec("5")))
	assert.Equal(t, "$0.00", Money(decimal.Zero))
	assert.Equal(t, "$-2.50", Money(dec("-2.5")))
	assert.Equal(t, "$10.13", Money(dec("10.125")))
}

func TestRenderMenu(t *testing.T) {
	p := New("https://t.me/+group", "@admin")
	msg := p.Render(conversation.Render{View: conversation.ViewMenu, Payload: conversation.Payload{
		DisplayName: "Alice",
		Balance:     dec("15"),
		Stats:       referral.Stats{ReferralCode: "ABCD1234", TotalReferrals: 3},
	}})

	assert.Contains(t, msg.Text, "Welcome, Alice!")
	assert.Contains(t, msg.Text, "Your Balance: $15.00")
	assert.Contains(t, msg.Text, "Total Referrals: 3")
	assert.Contains(t, msg.Text, "ABCD1234")
	require.Len(t, msg.Menu, 3)
	assert.Len(t, msg.Menu[0], 2)
	assert.Len(t, msg.Menu[1], 2)
	assert.Len(t, msg.Menu[2], 1)
	assert.Equal(t, []string{
		conversation.SelectBalance,
		conversation.SelectReferralInfo,
		conversation.SelectWithdraw,
		conversation.SelectEarningGuide,
		conversation.SelectReferralLink,
	}, callbacks(msg))
	assert.False(t, msg.Alert)
}

func TestRenderJoinPrompt(t *testing.T) {
	p := New("https://t.me/+group", "@admin")
	msg := p.Render(conversation.Render{View: conversation.ViewJoinPrompt})

	require.Len(t, msg.Menu, 2)
	assert.Equal(t, "https://t.me/+group", msg.Menu[0][0].URL)
	assert.Equal(t, conversation.SelectJoined, msg.Menu[1][0].Data)
}

func TestRenderNotJoinedIsAlert(t *testing.T) {
	msg := New("", "").Render(conversation.Render{View: conversation.ViewNotJoined})
	assert.True(t, msg.Alert)
	assert.Empty(t, msg.Menu)
}

func TestRenderWithdraw(t *testing.T) {
	p := New("", "@payouts")

	msg := p.Render(conversation.Render{View: conversation.ViewWithdrawOptions, Payload: conversation.Payload{
		Balance:       dec("7.5"),
		MinWithdrawal: referral.MinWithdrawal,
	}})
	assert.Contains(t, msg.Text, "Available Balance: $7.50")
	assert.Contains(t, msg.Text, "Minimum withdrawal amount: $10.00")
	assert.Equal(t, []string{"withdraw_paypal", "withdraw_bank", "withdraw_crypto", conversation.SelectBack}, callbacks(msg))

	msg = p.Render(conversation.Render{View: conversation.ViewWithdrawInstructions, Payload: conversation.Payload{
		Method: conversation.WithdrawalMethods[1],
	}})
	assert.Contains(t, msg.Text, "To withdraw via Bank Transfer, please send a message to @payouts")
	assert.Equal(t, []string{conversation.SelectWithdraw}, callbacks(msg))
}

func TestRenderReferralLink(t *testing.T) {
	link := "https://t.me/refbot?start=ABCD1234"
	msg := New("", "").Render(conversation.Render{View: conversation.ViewReferralLink, Payload: conversation.Payload{
		ReferralLink: link,
	}})

	assert.Contains(t, msg.Text, link)
	share, err := url.Parse(msg.Menu[0][0].URL)
	require.NoError(t, err)
	assert.Equal(t, "t.me", share.Host)
	assert.Equal(t, link, share.Query().Get("url"))
	assert.Equal(t, []string{conversation.SelectBack}, callbacks(msg))
}

func TestRenderEarningGuide(t *testing.T) {
	msg := New("", "").Render(conversation.Render{View: conversation.ViewEarningGuide, Payload: conversation.Payload{
		Reward:        referral.Reward,
		MinWithdrawal: referral.MinWithdrawal,
	}})
	assert.Contains(t, msg.Text, "Earn $5.00 for each friend")
	assert.Contains(t, msg.Text, "$10.00")
	assert.NotContains(t, msg.Text, "%")
}

func TestEveryViewHasText(t *testing.T) {
	p := New("https://t.me/+group", "@admin")
	for _, v := range []conversation.View{
		conversation.ViewJoinPrompt, conversation.ViewNotJoined, conversation.ViewJoined,
		conversation.ViewMenu, conversation.ViewBalance, conversation.ViewReferralInfo,
		conversation.ViewReferralLink, conversation.ViewWithdrawOptions,
		conversation.ViewWithdrawInstructions, conversation.ViewEarningGuide,
		conversation.ViewCancelled, conversation.ViewError,
	} {
		msg := p.Render(conversation.Render{View: v})
		assert.NotEmpty(t, strings.TrimSpace(msg.Text), v)
	}
}

func TestRewardNotice(t *testing.T) {
	text := New("", "").RewardNotice(referral.Notice{ReferrerID: 1, ReferredName: "Bob", Amount: referral.Reward})
	assert.Equal(t, "🎉 You earned $5.00 for referring Bob!", text)
}

func TestAdminReport(t *testing.T) {
	day := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	text := New("", "").AdminReport(day, ledger.Totals{
		Users:       12,
		NewUsers:    3,
		Referrals:   4,
		RewardsPaid: dec("20"),
		Outstanding: dec("17.5"),
	})

	assert.Contains(t, text, "2026-10-15")
	assert.Contains(t, text, "Users: 12 (+3)")
	assert.Contains(t, text, "Referrals: 4")
	assert.Contains(t, text, "Rewards paid: $20.00")
	assert.Contains(t, text, "Outstanding balances: $17.50")
}
