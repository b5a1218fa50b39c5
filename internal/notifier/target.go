package notifier

import (
	"fmt"
	netmail "net/mail"
	"strconv"
	"strings"

	"feedwatch/internal/domain"
)

// Transport kinds.
const (
	KindNone     = ""
	KindEmail    = "email"
	KindTelegram = "telegram"
)

// Target is a parsed notification address.
type Target struct {
	Kind    string
	Address string
	// ChatID is set for telegram targets.
	ChatID int64
}

func (t Target) String() string {
	switch t.Kind {
	case KindEmail:
		return "mailto:" + t.Address
	case KindTelegram:
		return "telegram:" + t.Address
	default:
		return ""
	}
}

// ParseTarget accepts "", "mailto:addr", a bare e-mail address and "telegram:<chat_id>".
func ParseTarget(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}, nil
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "telegram:"), strings.HasPrefix(lower, "tg:"):
		id := strings.TrimSpace(s[strings.Index(s, ":")+1:])
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil || chatID == 0 {
			return Target{}, fmt.Errorf("notify target %q: invalid chat id: %w", raw, domain.ErrConfiguration)
		}
		return Target{Kind: KindTelegram, Address: id, ChatID: chatID}, nil
	case strings.HasPrefix(lower, "mailto:"):
		s = strings.TrimSpace(s[len("mailto:"):])
	}
	addr, err := netmail.ParseAddress(s)
	if err != nil {
		return Target{}, fmt.Errorf("notify target %q: %v: %w", raw, err, domain.ErrConfiguration)
	}
	return Target{Kind: KindEmail, Address: addr.Address}, nil
}
