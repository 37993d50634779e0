// Package alert escalates repeated scrape failures. A JSON state file
// tracks consecutive failures per institution; when a bank's streak
// crosses the threshold one email goes out, and the next success clears
// the streak and re-arms the alert. Selector rot breaks scrapers silently
// on a schedule, so somebody has to hear about it.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fintself.lib.alert")

// DefaultThreshold is how many consecutive failures trip an alert when
// the configuration does not say otherwise.
const DefaultThreshold = 3

const defaultStatePath = "fintself_attempts.json"

// Mailer delivers alert notifications.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPConfig configures the alert mailer.
type SMTPConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	User     string   `json:"user"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

type SMTPMailer struct {
	config SMTPConfig
}

func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	ctx, span := tracer.Start(ctx, "alert:Send")
	defer span.End()

	if m.config.Host == "" || len(m.config.To) == 0 {
		return errors.New("smtp host or recipients not configured")
	}

	mail := email.NewEmail()
	from := m.config.From
	if from == "" {
		from = m.config.User
	}
	if from == "" {
		from = "fintself@localhost"
	}
	mail.From = from
	mail.To = m.config.To
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	var auth smtp.Auth
	if m.config.User != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.User, m.config.Password, m.config.Host)
	}
	err := mail.Send(addr, auth)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send alert email")
		return err
	}

	slog.InfoContext(ctx, "alert email sent",
		"to", strings.Join(m.config.To, ", "), "subject", subject)
	return nil
}

// state is the on-disk shape; field names are load-bearing for
// deployments that already carry a state file.
type state struct {
	Attempts map[string]*bankState `json:"attempts"`
}

type bankState struct {
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastErrorTS         string `json:"last_error_ts,omitempty"`
	AlertSent           bool   `json:"alert_sent"`
}

func (s *state) bank(bankID string) *bankState {
	if s.Attempts == nil {
		s.Attempts = map[string]*bankState{}
	}
	bank, ok := s.Attempts[bankID]
	if !ok {
		bank = &bankState{}
		s.Attempts[bankID] = bank
	}
	return bank
}

// Tracker persists failure streaks and fires the mailer on threshold.
// State handling is deliberately forgiving: a corrupt or unwritable state
// file degrades alerting, never the scrape itself.
type Tracker struct {
	path      string
	threshold int
	mailer    Mailer
}

// TrackerOptions configure a Tracker. The zero value works: default state
// path, default threshold, alerting disabled.
type TrackerOptions struct {
	// StatePath is the JSON file holding failure streaks.
	StatePath string
	// Threshold is the streak length that trips the alert.
	Threshold int
	// Mailer delivers the notification. nil disables emails while the
	// streaks keep being tracked.
	Mailer Mailer
}

func NewTracker(opts TrackerOptions) *Tracker {
	if opts.StatePath == "" {
		opts.StatePath = defaultStatePath
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Tracker{
		path:      opts.StatePath,
		threshold: opts.Threshold,
		mailer:    opts.Mailer,
	}
}

// RecordFailure bumps the institution's streak, firing the alert when the
// streak reaches the threshold. The email goes out once per streak; the
// returned count is the new streak length.
func (t *Tracker) RecordFailure(ctx context.Context, bankID string, cause error) int {
	ctx, span := tracer.Start(ctx, "tracker:RecordFailure")
	defer span.End()

	st := t.load(ctx)
	bank := st.bank(bankID)
	bank.ConsecutiveFailures++
	bank.LastErrorTS = time.Now().UTC().Format(time.RFC3339)

	if bank.ConsecutiveFailures >= t.threshold && !bank.AlertSent && t.mailer != nil {
		subject := fmt.Sprintf("fintself: %s failed %d runs in a row", bankID, bank.ConsecutiveFailures)
		body := fmt.Sprintf(
			"The %s scraper has now failed %d consecutive runs.\n\nLast error:\n%v\n\nNo further emails will be sent until it succeeds again.\n",
			bankID, bank.ConsecutiveFailures, cause)
		if err := t.mailer.Send(ctx, subject, body); err != nil {
			slog.WarnContext(ctx, "could not send failure alert",
				"bank_id", bankID, "err", err)
		} else {
			bank.AlertSent = true
		}
	}

	t.save(ctx, st)
	return bank.ConsecutiveFailures
}

// RecordSuccess clears the institution's streak and re-arms the alert.
func (t *Tracker) RecordSuccess(ctx context.Context, bankID string) {
	st := t.load(ctx)
	bank := st.bank(bankID)
	bank.ConsecutiveFailures = 0
	bank.AlertSent = false
	bank.LastErrorTS = ""
	t.save(ctx, st)
}

// Failures reports the institution's current streak.
func (t *Tracker) Failures(bankID string) int {
	st := t.load(context.Background())
	if st.Attempts == nil {
		return 0
	}
	if bank, ok := st.Attempts[bankID]; ok {
		return bank.ConsecutiveFailures
	}
	return 0
}

func (t *Tracker) load(ctx context.Context) *state {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "could not load attempt state",
				"path", t.path, "err", err)
		}
		return &state{}
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		slog.WarnContext(ctx, "attempt state is corrupt, starting fresh",
			"path", t.path, "err", err)
		return &state{}
	}
	return &st
}

func (t *Tracker) save(ctx context.Context, st *state) {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		slog.WarnContext(ctx, "could not encode attempt state", "err", err)
		return
	}
	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.WarnContext(ctx, "could not create attempt state directory",
				"path", dir, "err", err)
			return
		}
	}
	if err := os.WriteFile(t.path, raw, 0o644); err != nil {
		slog.WarnContext(ctx, "could not save attempt state",
			"path", t.path, "err", err)
	}
}
