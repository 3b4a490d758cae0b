package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

type telegramSender struct {
	bot *tele.Bot
}

func newTelegramSender(token string) (*telegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token: token,
		// Send-only bot: no poller is started, but the client is configured
		// with one so a later Start() call on it would be safe.
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b}, nil
}

func (t *telegramSender) sendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := &tele.Chat{ID: chatID}
	opt := &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	}
	_, err := t.bot.Send(chat, text, opt)
	return err
}
