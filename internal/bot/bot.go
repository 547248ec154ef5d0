package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"referral-bot/internal/conversation"
	"referral-bot/internal/ledger"
	"referral-bot/internal/presenter"
)

// API is the subset of the Telegram Bot API the bot calls while handling
// updates. *telego.Bot implements it.
type API interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error)
}

type Conversation interface {
	Handle(ctx context.Context, in conversation.Input) conversation.Result
}

type Renderer interface {
	Render(r conversation.Render) presenter.Message
}

type Bot struct {
	client *telego.Bot
	api    API
	conv   Conversation
	view   Renderer
	logger *zap.Logger
}

// NewClient creates the Telegram client. telego logs through zap.
func NewClient(token string, logger *zap.Logger) (*telego.Bot, error) {
	client, err := telego.NewBot(token, telego.WithLogger(logger.Named("telego").Sugar()))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return client, nil
}

func New(client *telego.Bot, conv Conversation, view Renderer, logger *zap.Logger) *Bot {
	return &Bot{
		client: client,
		api:    client,
		conv:   conv,
		view:   view,
		logger: logger.Named("bot"),
	}
}

// Username asks Telegram for the bot's own username.
func Username(ctx context.Context, client *telego.Bot) (string, error) {
	me, err := client.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot info: %w", err)
	}
	return me.Username, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.client.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.client, updates)
	if err != nil {
		return fmt.Errorf("create update handler: %w", err)
	}

	// /start [code]
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if !private(message) {
			return nil
		}
		b.handle(ctx.Context(), origin{chatID: message.Chat.ID}, conversation.Input{
			UserID:  message.From.ID,
			Profile: profile(*message.From),
			Kind:    conversation.Start,
			Arg:     startArg(message.Text),
		})
		return nil
	}, th.CommandEqual("start"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if !private(message) {
			return nil
		}
		b.handle(ctx.Context(), origin{chatID: message.Chat.ID}, conversation.Input{
			UserID:  message.From.ID,
			Profile: profile(*message.From),
			Kind:    conversation.Cancel,
		})
		return nil
	}, th.CommandEqual("cancel"))

	// Menu buttons
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		from := origin{chatID: callback.From.ID, callbackID: callback.ID}
		if callback.Message != nil {
			// Inaccessible messages are too old to edit.
			if pressed := callback.Message.Message(); pressed != nil {
				from.chatID = pressed.Chat.ID
				from.messageID = pressed.MessageID
			}
		}
		b.handle(ctx.Context(), from, conversation.Input{
			UserID:  callback.From.ID,
			Profile: profile(callback.From),
			Kind:    conversation.Select,
			Arg:     callback.Data,
		})
		return nil
	}, th.AnyCallbackQuery())

	// Free text
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		if !private(message) {
			return nil
		}
		b.handle(ctx.Context(), origin{chatID: message.Chat.ID}, conversation.Input{
			UserID:  message.From.ID,
			Profile: profile(*message.From),
			Kind:    conversation.Text,
			Arg:     message.Text,
		})
		return nil
	}, th.AnyMessageWithText(), th.Not(th.AnyCommand()))

	go func() {
		<-ctx.Done()
		_ = handler.Stop()
	}()

	b.logger.Info("Bot started")
	return handler.Start()
}

// origin is where an action came from. callbackID and messageID are only set
// for button presses.
type origin struct {
	chatID     int64
	callbackID string
	messageID  int
}

// handle runs one action through the conversation and delivers the result.
// For a button press the first message replaces the one holding the button.
func (b *Bot) handle(ctx context.Context, from origin, in conversation.Input) {
	res := b.conv.Handle(ctx, in)

	answered, edited := false, false
	for _, r := range res.Renders {
		msg := b.view.Render(r)
		if msg.Alert && from.callbackID != "" && !answered {
			err := b.api.AnswerCallbackQuery(ctx, tu.CallbackQuery(from.callbackID).WithText(msg.Text).WithShowAlert())
			if err != nil {
				b.logger.Warn("Failed to answer callback", zap.Int64("user_id", in.UserID), zap.Error(err))
			}
			answered = true
			continue
		}
		if from.messageID != 0 && !edited {
			edited = true
			if b.edit(ctx, from, msg) {
				continue
			}
		}
		b.send(ctx, from.chatID, msg)
	}

	if from.callbackID != "" && !answered {
		if err := b.api.AnswerCallbackQuery(ctx, tu.CallbackQuery(from.callbackID)); err != nil {
			b.logger.Warn("Failed to answer callback", zap.Int64("user_id", in.UserID), zap.Error(err))
		}
	}
}

func (b *Bot) edit(ctx context.Context, from origin, msg presenter.Message) bool {
	params := tu.EditMessageText(tu.ID(from.chatID), from.messageID, msg.Text)
	if markup := keyboard(msg.Menu); markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if _, err := b.api.EditMessageText(ctx, params); err != nil {
		b.logger.Debug("Failed to edit message, sending instead",
			zap.Int64("chat_id", from.chatID),
			zap.Int("message_id", from.messageID),
			zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) send(ctx context.Context, chatID int64, msg presenter.Message) {
	params := tu.Message(tu.ID(chatID), msg.Text)
	if markup := keyboard(msg.Menu); markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if _, err := b.api.SendMessage(ctx, params); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func keyboard(menu [][]presenter.Button) *telego.InlineKeyboardMarkup {
	if len(menu) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(menu))
	for _, row := range menu {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			button := tu.InlineKeyboardButton(btn.Text)
			if btn.URL != "" {
				button = button.WithURL(btn.URL)
			} else {
				button = button.WithCallbackData(btn.Data)
			}
			buttons = append(buttons, button)
		}
		rows = append(rows, tu.InlineKeyboardRow(buttons...))
	}
	return tu.InlineKeyboard(rows...)
}

// startArg returns the deep-link payload of a /start command, if any.
func startArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func profile(u telego.User) ledger.Profile {
	return ledger.Profile{
		Username:    u.Username,
		DisplayName: strings.TrimSpace(u.FirstName),
	}
}

func private(m *telego.Message) bool {
	return m != nil && m.From != nil && m.Chat.Type == telego.ChatTypePrivate
}
