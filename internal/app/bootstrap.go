package app

import (
	"fmt"

	"feedwatch/internal/config"
	"feedwatch/internal/domain"
	"feedwatch/internal/notifier"
	"feedwatch/internal/transport/email"
	"feedwatch/internal/transport/telegram"
	logx "feedwatch/pkg/logx"
)

// NewSender picks the transport for the configured target kind.
// It returns nil, nil when no target is configured.
func NewSender(n config.NotifyRuntime, log logx.Logger) (notifier.Sender, error) {
	switch n.Target.Kind {
	case notifier.KindNone:
		return nil, nil
	case notifier.KindEmail:
		creds, err := email.LoadCredentials(n.SMTPCredentials)
		if err != nil {
			return nil, err
		}
		if n.From != "" {
			creds.From = n.From
		}
		return email.New(creds, log)
	case notifier.KindTelegram:
		return telegram.New(n.Telegram, log)
	default:
		return nil, fmt.Errorf("notification target %q: %w", n.Target, domain.ErrConfiguration)
	}
}
