// Package telegram delivers batches as Bot API messages.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"feedwatch/internal/domain"
	"feedwatch/internal/notifier"
	logx "feedwatch/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint. Empty uses the public one.
	APIURL string
	// ThreadID posts into a forum topic when non-zero.
	ThreadID int
	Timeout  time.Duration
	// Rate limits outgoing messages per second. Default 1.
	Rate float64
}

type Sender struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	mu sync.Mutex
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is empty: %w", domain.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %v: %w", err, domain.ErrConfiguration)
	}
	return &Sender{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
	}, nil
}

func (s *Sender) Name() string { return "telegram" }

// Send posts msg to the chat named by msg.Target, split into as many
// messages as needed. A partial failure returns the first error.
func (s *Sender) Send(ctx context.Context, msg notifier.Message) error {
	t, err := notifier.ParseTarget(msg.Target)
	if err != nil {
		return err
	}
	if t.Kind != notifier.KindTelegram {
		return fmt.Errorf("telegram sender cannot deliver to %q: %w", msg.Target, domain.ErrConfiguration)
	}

	chunks := splitText(Render(msg), TextLimit, true)
	chat := &tele.Chat{ID: t.ChatID}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, chunk := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
			ThreadID:              s.cfg.ThreadID,
		})
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("%w: telegram send chunk %d/%d: %v", domain.ErrNetwork, i+1, len(chunks), err)
		}
	}
	s.log.Debug("telegram batch sent", logx.Int("chunks", len(chunks)), logx.Int("items", len(msg.Items)))
	return nil
}

// Render formats msg for Telegram's HTML parse mode, which only accepts a
// small tag subset, so the e-mail document is not reused.
func Render(msg notifier.Message) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(msg.Subject))
	b.WriteString("</b>\n")
	for _, it := range msg.Items {
		fmt.Fprintf(&b, "\n%s <i>%s</i>\n<a href=\"%s\">%s</a>\nby %s\n",
			it.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
			html.EscapeString(it.Container),
			html.EscapeString(it.Permalink),
			html.EscapeString(it.Title),
			html.EscapeString(it.Author),
		)
	}
	return b.String()
}
