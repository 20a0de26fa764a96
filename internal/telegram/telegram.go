// Package telegram exposes the conversational router as a Telegram bot
// bound to one chat and one local user.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/chat"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/social"
)

const resetReply = "Conversation cleared. What kind of friends are you looking to connect with?"

// Sender is the part of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot answers messages from its chat with the router.
type Bot struct {
	api     Sender
	chatID  int64
	router  *chat.Router
	session *social.SessionContext
	logger  *zap.Logger
}

// Dial connects to the Bot API with token.
func Dial(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return api, nil
}

// ParseChatID parses the configured chat id.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id: %w", err)
	}
	return id, nil
}

// New creates a bot. session is the hydrated context of the local user.
func New(api Sender, chatID int64, router *chat.Router, session *social.SessionContext, logger *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		chatID:  chatID,
		router:  router,
		session: session,
		logger:  logging.OrNop(logger).With(zap.Int64("chat", chatID)),
	}
}

// Run handles updates until ctx is done or updates is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.Handle(ctx, u); err != nil {
				b.logger.Warn("Sending reply failed", zap.Error(err))
			}
		}
	}
}

// Handle answers one update. Updates from other chats and non-text
// updates are ignored.
func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) error {
	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != b.chatID {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	var reply string
	switch {
	case msg.IsCommand() && (msg.Command() == "start" || msg.Command() == "hello"):
		reply = chat.Greeting(b.session)
	case msg.IsCommand() && msg.Command() == "reset":
		// Only the conversation resets; fetched and analyzed data stay.
		b.session.ClearTranscript()
		b.session.Analyzed = len(b.session.Interests) > 0
		reply = resetReply
	default:
		reply = b.router.HandleQuery(ctx, text, b.session)
	}

	b.logger.Debug("Replying", zap.Int("transcript", b.session.Transcript.Len()))
	out := tgbotapi.NewMessage(b.chatID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}
