// Package notify pushes operator alerts out of band. Alerts are best effort:
// a failed notification is logged and dropped, never retried into the relay
// path.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 2
)

// Telegram delivers alerts to a single operator chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram notifier connected", "username", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends one alert, splitting long text on line boundaries because
// Telegram caps message length.
func (t *Telegram) Notify(text string) {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chunk)
	}
}

func (t *Telegram) sendChunk(text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
		if err == nil {
			return
		}

		if strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter)
			time.Sleep(retryAfter)
			continue
		}

		if attempt < telegramMaxSendRetries {
			time.Sleep(time.Duration(attempt+1) * time.Second)
			continue
		}

		t.logger.Error("telegram notify failed", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}
