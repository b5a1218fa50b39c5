package email

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"feedwatch/internal/domain"
	"feedwatch/internal/notifier"
	logx "feedwatch/pkg/logx"
)

const defaultTimeout = 30 * time.Second

// Sender relays batches through an authenticated SMTP server.
type Sender struct {
	creds Credentials
	log   logx.Logger

	// go-mail clients are not safe for concurrent sends.
	mu     sync.Mutex
	client *mail.Client
}

func New(creds Credentials, log logx.Logger) (*Sender, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	opts := []mail.Option{
		mail.WithPort(creds.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.User),
		mail.WithPassword(creds.Password),
		mail.WithTimeout(defaultTimeout),
	}
	if creds.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithSSL())
	}
	c, err := mail.NewClient(creds.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %v: %w", err, domain.ErrConfiguration)
	}
	return &Sender{creds: creds, log: log, client: c}, nil
}

func (s *Sender) Name() string { return "smtp" }

// Send delivers msg to the address in msg.Target.
func (s *Sender) Send(ctx context.Context, msg notifier.Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%w: smtp send: %v", domain.ErrNetwork, err)
	}
	s.log.Debug("mail relayed", logx.String("host", s.creds.Host), logx.Int("items", len(msg.Items)))
	return nil
}

func (s *Sender) build(msg notifier.Message) (*mail.Msg, error) {
	t, err := notifier.ParseTarget(msg.Target)
	if err != nil {
		return nil, err
	}
	if t.Kind != notifier.KindEmail {
		return nil, fmt.Errorf("smtp sender cannot deliver to %q: %w", msg.Target, domain.ErrConfiguration)
	}

	m := mail.NewMsg()
	if err := m.From(s.creds.From); err != nil {
		return nil, fmt.Errorf("from %q: %v: %w", s.creds.From, err, domain.ErrConfiguration)
	}
	if err := m.To(t.Address); err != nil {
		return nil, fmt.Errorf("to %q: %v: %w", t.Address, err, domain.ErrConfiguration)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
