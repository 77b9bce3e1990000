package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/pkg/circuitbreaker"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("email: no recipients")

type Service interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one HTML mail. From is the bare sender address; FromName is
// the display name and may contain any UTF-8 text.
type Message struct {
	To       []string
	From     string
	FromName string
	Subject  string
	HTML     string
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(m.From) == "" {
		return errors.New("email: missing from address")
	}
	return nil
}

// SMTPService delivers mail with gomail, one connection per message.
type SMTPService struct {
	dialer *gomail.Dialer
	cb     *circuitbreaker.CircuitBreaker
	log    *logger.Logger
	// send delivers a composed message. It is the dialer unless replaced in tests.
	send func(m ...*gomail.Message) error
}

// NewSMTPService dials the configured host, or the host of the configured
// well-known service when no host is set.
func NewSMTPService(cfg config.SMTPConfig, log *logger.Logger) (*SMTPService, error) {
	host, err := cfg.ResolvedHost()
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	d := gomail.NewDialer(host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.UseSSL
	if !cfg.UseSSL {
		d.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SMTPService{
		dialer: d,
		log:    log,
		send:   d.DialAndSend,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 5,
			Timeout:     cfg.Timeout,
		}),
	}, nil
}

// Host is the SMTP server the service dials.
func (s *SMTPService) Host() string { return s.dialer.Host }

// compose builds the MIME message. The From header goes through
// SetAddressHeader so a non-ASCII display name is encoded on its own and the
// address stays parseable.
func compose(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return m
}

func (s *SMTPService) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := compose(msg)
	err := s.cb.Execute(func() error { return s.send(m) })
	if err != nil {
		return fmt.Errorf("failed to send %q: %w", msg.Subject, err)
	}
	s.log.Debug("email sent", "subject", msg.Subject, "recipients", len(msg.To))
	return nil
}

// LogService writes messages to the log instead of sending them.
type LogService struct {
	log *logger.Logger
}

func NewLogService(log *logger.Logger) *LogService {
	return &LogService{log: log}
}

func (s *LogService) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.log.Info("email (dry run)",
		"from", FromHeader(msg.FromName, msg.From),
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"bytes", len(msg.HTML),
	)
	return nil
}

// Recorder keeps every message it is asked to send. Fail, when set, decides
// per message whether the send fails.
type Recorder struct {
	mu   sync.Mutex
	Sent []Message
	Fail func(Message) error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if r.Fail != nil {
		if err := r.Fail(msg); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, msg)
	return nil
}

// Messages returns a copy of what has been sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Sent...)
}

// FromHeader renders sender name and address for display in logs.
func FromHeader(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}
