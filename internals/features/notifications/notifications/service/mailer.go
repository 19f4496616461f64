package service

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vulcan_backend/internals/features/applications/repository"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
)

type DeliveryResult struct {
	MessageID   string
	DeliveredAt time.Time
}

// Mailer sends one rendered template to one recipient.
type Mailer interface {
	Send(ctx context.Context, template, recipient string, vars map[string]string) (DeliveryResult, error)
}

/* =========================================================
   Templates
========================================================= */

var placeholderRe = regexp.MustCompile(`%<([a-zA-Z_][a-zA-Z0-9_]*)>s`)

// Interpolate replaces %<name>s placeholders. Every placeholder must have a value.
func Interpolate(text string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("template variables missing: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

type RenderedMail struct {
	Subject string
	Body    string
	Format  string
}

type TemplateRenderer struct {
	Store repository.Store
}

func (r *TemplateRenderer) Render(ctx context.Context, name string, vars map[string]string) (RenderedMail, error) {
	t, err := r.Store.GetEmailTemplate(ctx, name)
	if err != nil {
		return RenderedMail{}, fmt.Errorf("email template %q: %w", name, err)
	}
	subject, err := Interpolate(t.Subject, vars)
	if err != nil {
		return RenderedMail{}, err
	}
	body, err := Interpolate(t.Body, vars)
	if err != nil {
		return RenderedMail{}, err
	}
	return RenderedMail{Subject: subject, Body: body, Format: t.Format}, nil
}

/* =========================================================
   SMTP
========================================================= */

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	Config   SMTPConfig
	Renderer *TemplateRenderer
	Clock    dbtime.Clock
	// send is smtp.SendMail; replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig, renderer *TemplateRenderer) *SMTPMailer {
	return &SMTPMailer{Config: cfg, Renderer: renderer, Clock: dbtime.NowUTC, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, template, recipient string, vars map[string]string) (DeliveryResult, error) {
	if strings.TrimSpace(recipient) == "" {
		return DeliveryResult{}, fmt.Errorf("recipient has no email address")
	}
	mail, err := m.Renderer.Render(ctx, template, vars)
	if err != nil {
		return DeliveryResult{}, err
	}

	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.Config.Host)
	contentType := "text/plain"
	if mail.Format == "html" {
		contentType = "text/html"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.Config.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mail.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", msgID)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=UTF-8\r\n\r\n", contentType)
	b.WriteString(mail.Body)

	var auth smtp.Auth
	if m.Config.Username != "" {
		auth = smtp.PlainAuth("", m.Config.Username, m.Config.Password, m.Config.Host)
	}
	addr := net.JoinHostPort(m.Config.Host, strconv.Itoa(m.Config.Port))
	if err := m.send(addr, auth, m.Config.From, []string{recipient}, []byte(b.String())); err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{MessageID: msgID, DeliveredAt: m.Clock.OrDefault()()}, nil
}

/* =========================================================
   Log mailer (development)
========================================================= */

type SentMail struct {
	Template  string
	Recipient string
	Subject   string
	Body      string
}

// LogMailer renders and logs mail instead of sending it.
type LogMailer struct {
	Renderer *TemplateRenderer

	mu   sync.Mutex
	sent []SentMail
	log  zerolog.Logger
}

func NewLogMailer(renderer *TemplateRenderer) *LogMailer {
	return &LogMailer{Renderer: renderer, log: logger.For("mailer")}
}

func (m *LogMailer) Send(ctx context.Context, template, recipient string, vars map[string]string) (DeliveryResult, error) {
	mail, err := m.Renderer.Render(ctx, template, vars)
	if err != nil {
		return DeliveryResult{}, err
	}
	m.mu.Lock()
	m.sent = append(m.sent, SentMail{Template: template, Recipient: recipient, Subject: mail.Subject, Body: mail.Body})
	m.mu.Unlock()

	m.log.Info().Str("template", template).Str("to", recipient).Str("subject", mail.Subject).Msg("mail (not sent)")
	return DeliveryResult{MessageID: "log-" + uuid.NewString(), DeliveredAt: time.Now().UTC()}, nil
}

func (m *LogMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

/* =========================================================
   Mock
========================================================= */

type MockMailer struct {
	SendFn func(ctx context.Context, template, recipient string, vars map[string]string) (DeliveryResult, error)
}

func (m *MockMailer) Send(ctx context.Context, template, recipient string, vars map[string]string) (DeliveryResult, error) {
	if m.SendFn == nil {
		return DeliveryResult{MessageID: "mock", DeliveredAt: time.Now().UTC()}, nil
	}
	return m.SendFn(ctx, template, recipient, vars)
}
