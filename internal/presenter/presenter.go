// Package presenter turns conversation renders into chat messages.
package presenter

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"referral-bot/internal/conversation"
	"referral-bot/internal/ledger"
	"referral-bot/internal/referral"
)

// Button is either a callback button (Data) or a link button (URL).
type Button struct {
	Text string
	Data string
	URL  string
}

// Message is a transport-neutral chat message. Alert messages are shown as a
// popup answer to the pressed button instead of a new message.
type Message struct {
	Text  string
	Menu  [][]Button
	Alert bool
}

type Presenter struct {
	GroupLink    string
	AdminContact string
}

func New(groupLink, adminContact string) *Presenter {
	return &Presenter{GroupLink: groupLink, AdminContact: adminContact}
}

func Money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

var backButton = Button{Text: "🔙 Back", Data: conversation.SelectBack}

func (p *Presenter) Render(r conversation.Render) Message {
	pl := r.Payload

	switch r.View {
	case conversation.ViewJoinPrompt:
		return Message{
			Text: "📢 To use this bot, please join our group first!\n\n" +
				"After joining, click the button below to continue.",
			Menu: [][]Button{
				{{Text: "Join Group", URL: p.GroupLink}},
				{{Text: "✅ I've Joined", Data: conversation.SelectJoined}},
			},
		}

	case conversation.ViewNotJoined:
		return Message{
			Text:  "You haven't joined the group yet. Please join to continue.",
			Alert: true,
		}

	case conversation.ViewJoined:
		return Message{Text: "Thanks for joining! Here's your menu:"}

	case conversation.ViewMenu:
		return Message{
			Text: fmt.Sprintf("👋 Welcome, %s!\n\n"+
				"💰 Your Balance: %s\n"+
				"👥 Total Referrals: %d\n"+
				"🎯 Your Referral Code: %s\n\n"+
				"Choose an option below:",
				pl.DisplayName, Money(pl.Balance), pl.Stats.TotalReferrals, pl.Stats.ReferralCode),
			Menu: [][]Button{
				{
					{Text: "💵 Check Balance", Data: conversation.SelectBalance},
					{Text: "👥 Referral Info", Data: conversation.SelectReferralInfo},
				},
				{
					{Text: "📤 Withdraw", Data: conversation.SelectWithdraw},
					{Text: "📚 Earning Guide", Data: conversation.SelectEarningGuide},
				},
				{
					{Text: "🔗 My Referral Link", Data: conversation.SelectReferralLink},
				},
			},
		}

	case conversation.ViewBalance:
		return Message{
			Text: "💰 Your current balance is: " + Money(pl.Balance),
			Menu: [][]Button{{backButton}},
		}

	case conversation.ViewReferralInfo:
		return Message{
			Text: fmt.Sprintf("👥 Your Referral Stats:\n\n"+
				"🎯 Your Code: %s\n"+
				"👥 Total Referrals: %d\n"+
				"💰 Total Earnings: %s\n\n"+
				"Invite friends using your referral link and earn rewards!",
				pl.Stats.ReferralCode, pl.Stats.TotalReferrals, Money(pl.Stats.TotalEarnings)),
			Menu: [][]Button{{backButton}},
		}

	case conversation.ViewReferralLink:
		return Message{
			Text: "🔗 Your Personal Referral Link:\n\n" +
				pl.ReferralLink + "\n\n" +
				"Share this link with friends to earn a reward when they join!",
			Menu: [][]Button{
				{{Text: "🔗 Share Link", URL: ShareURL(pl.ReferralLink)}},
				{backButton},
			},
		}

	case conversation.ViewWithdrawOptions:
		menu := make([][]Button, 0, len(conversation.WithdrawalMethods)+1)
		for _, m := range conversation.WithdrawalMethods {
			menu = append(menu, []Button{{Text: m.Label, Data: conversation.SelectWithdrawal(m)}})
		}
		menu = append(menu, []Button{backButton})
		return Message{
			Text: fmt.Sprintf("📤 Withdrawal Options\n\n"+
				"💰 Available Balance: %s\n\n"+
				"Minimum withdrawal amount: %s\n"+
				"Select your preferred withdrawal method:",
				Money(pl.Balance), Money(pl.MinWithdrawal)),
			Menu: menu,
		}

	case conversation.ViewWithdrawInstructions:
		return Message{
			Text: fmt.Sprintf("To withdraw via %s, please send a message to %s with:\n\n"+
				"1. Your withdrawal amount\n"+
				"2. Your %s details\n"+
				"3. Your user ID\n\n"+
				"Our team will process your request within 24 hours.",
				pl.Method.Label, p.AdminContact, pl.Method.Label),
			Menu: [][]Button{{{Text: "🔙 Back", Data: conversation.SelectWithdraw}}},
		}

	case conversation.ViewEarningGuide:
		return Message{
			Text: fmt.Sprintf("📚 Earning Guide\n\n"+
				"💰 Earn %s for each friend who joins using your referral link.\n\n"+
				"🔗 Share your referral link with as many people as possible to maximize your earnings!\n\n"+
				"Minimum withdrawal amount is %s.",
				Money(pl.Reward), Money(pl.MinWithdrawal)),
			Menu: [][]Button{{backButton}},
		}

	case conversation.ViewCancelled:
		return Message{Text: "Operation cancelled."}
	}

	return Message{Text: "⚠️ Something went wrong. Please try again later."}
}

// ShareURL is the Telegram share dialog prefilled with link.
func ShareURL(link string) string {
	q := url.Values{}
	q.Set("url", link)
	q.Set("text", "Join this bot and earn money!")
	return "https://t.me/share/url?" + q.Encode()
}

func (p *Presenter) RewardNotice(n referral.Notice) string {
	return fmt.Sprintf("🎉 You earned %s for referring %s!", Money(n.Amount), n.ReferredName)
}

// AdminReport formats the operator summary dated day.
func (p *Presenter) AdminReport(day time.Time, t ledger.Totals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Daily report for %s\n\n", day.Format(time.DateOnly))
	fmt.Fprintf(&b, "👥 Users: %d (+%d)\n", t.Users, t.NewUsers)
	fmt.Fprintf(&b, "🤝 Referrals: %d\n", t.Referrals)
	fmt.Fprintf(&b, "💸 Rewards paid: %s\n", Money(t.RewardsPaid))
	fmt.Fprintf(&b, "💰 Outstanding balances: %s", Money(t.Outstanding))
	return b.String()
}
