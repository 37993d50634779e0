// Package scraper contains the lifecycle orchestrator that drives an
// institution driver through login, extraction and normalization, plus the
// driver contract and the registry that resolves institution ids.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"fintself/lib/browser"
	"fintself/lib/capture"
	"fintself/lib/fault"
	"fintself/lib/movement"
	"fintself/lib/parse"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("fintself.lib.scraper")
var meter = otel.Meter("fintself.lib.scraper")

var scrapeCounter, _ = meter.Int64Counter(
	"scrapes",
	metric.WithDescription("The total amount of scrape runs, tagged by institution and outcome."),
)
var movementCounter, _ = meter.Int64Counter(
	"movements_extracted",
	metric.WithDescription("The total amount of movements that survived normalization."),
)

// State tracks a scrape through its lifecycle.
type State int32

const (
	StateCreated State = iota
	StateLoggingIn
	StateExtracting
	StateNormalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoggingIn:
		return "logging_in"
	case StateExtracting:
		return "extracting"
	case StateNormalizing:
		return "normalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Options configures one Scraper.
type Options struct {
	// Visible shows the browser window instead of running headless.
	Visible bool
	// Debug enables snapshot capture and forces a visible browser.
	Debug bool
	// DebugDir is where snapshots land, "debug_output" by default.
	DebugDir string
	// Browser is handed to the session factory. Headless is derived from
	// Visible and overwritten.
	Browser browser.Options
	// NewSession replaces the chromedp session factory, used by tests.
	NewSession browser.Factory
}

// Scraper sequences one institution driver through a full run. One
// instance serves exactly one Scrape call; build a new one per run.
type Scraper struct {
	driver     Driver
	opts       Options
	snapshots  *capture.Capture
	newSession browser.Factory
	state      atomic.Int32
	started    atomic.Bool
}

func New(driver Driver, opts Options) *Scraper {
	if opts.Debug {
		opts.Visible = true
	}
	if opts.DebugDir == "" {
		opts.DebugDir = "debug_output"
	}
	factory := opts.NewSession
	if factory == nil {
		factory = browser.NewChromeSession
	}
	snapshots := capture.Disabled()
	if opts.Debug {
		snapshots = capture.New(opts.DebugDir, driver.BankID())
	}
	return &Scraper{
		driver:     driver,
		opts:       opts,
		snapshots:  snapshots,
		newSession: factory,
	}
}

// State reports the current lifecycle state.
func (s *Scraper) State() State {
	return State(s.state.Load())
}

func (s *Scraper) setState(state State) {
	s.state.Store(int32(state))
}

// Scrape is the single entry point: it logs in, extracts and normalizes,
// returning the validated movements. It is not reentrant; a second call on
// the same instance fails immediately. The browser session is released on
// every exit path.
//
// When extraction fails after producing fragments (one card out of three,
// say), Scrape returns the movements that normalized together with the
// extraction error, like io.Reader returning n > 0 with an error.
func (s *Scraper) Scrape(ctx context.Context, user, password string) ([]movement.Movement, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("scraper for %s already ran: build a new instance per run", s.driver.BankID())
	}

	bankID := s.driver.BankID()
	ctx, span := tracer.Start(ctx, "scraper:Scrape")
	defer span.End()
	span.SetAttributes(attribute.String("bank_id", bankID))

	s.setState(StateLoggingIn)
	browserOpts := s.opts.Browser
	browserOpts.Headless = !s.opts.Visible
	session, err := s.newSession(ctx, browserOpts)
	if err != nil {
		s.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start browser session")
		return nil, fmt.Errorf("starting browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.WarnContext(ctx, "closing browser session", "bank_id", bankID, "err", err)
		}
	}()

	slog.InfoContext(ctx, "logging in", "bank_id", bankID)
	if err := s.login(ctx, session, Credentials{User: user, Password: password}); err != nil {
		s.fail(ctx, session, span, err)
		return nil, err
	}

	s.setState(StateExtracting)
	s.snapshots.Snapshot(ctx, session, "post_login")

	slog.InfoContext(ctx, "extracting movements", "bank_id", bankID)
	fragments, extractErr := s.extract(ctx, session)
	if extractErr != nil && len(fragments) == 0 {
		s.fail(ctx, session, span, extractErr)
		return nil, extractErr
	}

	s.setState(StateNormalizing)
	records, err := s.normalize(ctx, fragments)
	if err != nil {
		s.fail(ctx, session, span, err)
		return nil, err
	}

	if extractErr != nil {
		slog.WarnContext(ctx, "extraction partially failed",
			"bank_id", bankID, "movements", len(records), "err", extractErr)
		s.fail(ctx, session, span, extractErr)
		return records, extractErr
	}

	s.setState(StateDone)
	scrapeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bank_id", bankID),
		attribute.String("outcome", "ok"),
	))
	slog.InfoContext(ctx, "scrape finished", "bank_id", bankID, "movements", len(records))
	span.SetAttributes(attribute.Int("movements", len(records)))
	return records, nil
}

func (s *Scraper) login(ctx context.Context, session browser.Session, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "scraper:Login")
	defer span.End()

	if err := s.driver.Login(ctx, session, creds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return err
	}
	return nil
}

func (s *Scraper) extract(ctx context.Context, session browser.Session) ([]Fragment, error) {
	ctx, span := tracer.Start(ctx, "scraper:Extract")
	defer span.End()

	fragments, err := s.driver.Extract(ctx, session)
	span.SetAttributes(attribute.Int("fragments", len(fragments)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
	}
	return fragments, err
}

func (s *Scraper) normalize(ctx context.Context, fragments []Fragment) ([]movement.Movement, error) {
	ctx, span := tracer.Start(ctx, "scraper:Normalize")
	defer span.End()

	profile := s.driver.Profile()
	bankID := s.driver.BankID()

	records := make([]movement.Movement, 0, len(fragments))
	for i, frag := range fragments {
		record, err := NormalizeFragment(bankID, profile, frag)
		if err != nil {
			// local failure: drop the record, keep the run alive
			slog.WarnContext(ctx, "dropping movement that failed normalization",
				"bank_id", bankID, "index", i, "err", err)
			continue
		}
		records = append(records, record)
	}

	movementCounter.Add(ctx, int64(len(records)),
		metric.WithAttributes(attribute.String("bank_id", bankID)))
	span.SetAttributes(
		attribute.Int("fragments", len(fragments)),
		attribute.Int("movements", len(records)),
	)
	if len(fragments) > 0 && len(records) == 0 {
		err := fault.New(fault.CodeExtraction, bankID, "no movement survived normalization")
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalization produced nothing")
		return nil, err
	}
	return records, nil
}

// fail snapshots the failing page when capture is enabled and marks the run
// failed. The original error always propagates untouched.
func (s *Scraper) fail(ctx context.Context, session browser.Session, span trace.Span, err error) {
	label := "unexpected_error"
	if fault.IsFault(err) {
		label = "scraping_error"
	}
	s.snapshots.Snapshot(ctx, session, label)
	s.setState(StateFailed)
	scrapeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bank_id", s.driver.BankID()),
		attribute.String("outcome", "failed"),
	))
	span.RecordError(err)
	span.SetStatus(codes.Error, "scrape failed")
}

// NormalizeFragment converts one raw fragment into a validated Movement
// using the driver profile's formats, stamping bankID. Pure: the same
// fragment always yields the same record.
func NormalizeFragment(bankID string, profile Profile, frag Fragment) (movement.Movement, error) {
	date, err := parse.Date(frag.DateText, profile.DateLayouts, profile.Location)
	if err != nil {
		return movement.Movement{}, fmt.Errorf("fragment date: %w", err)
	}
	amount, err := parse.Amount(frag.AmountText, profile.Numbers)
	if err != nil {
		return movement.Movement{}, fmt.Errorf("fragment amount: %w", err)
	}

	currency := frag.Currency
	if currency == "" {
		currency = profile.Currency
	}

	record := movement.Movement{
		BankID:      bankID,
		Date:        date,
		Description: parse.CollapseSpace(frag.Description),
		Amount:      amount,
		Currency:    currency,
		AccountRef:  frag.AccountRef,
		Kind:        frag.Kind,
		RawRef:      frag.RawRef,
	}
	if err := record.Validate(); err != nil {
		return movement.Movement{}, err
	}
	return record, nil
}
