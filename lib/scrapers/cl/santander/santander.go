// Package santander drives the Banco Santander Chile portal and extracts
// credit card movements, both the billed statement and the current
// unbilled period, for every card on the profile or an allow-listed
// subset of them.
package santander

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"fintself/lib/browser"
	"fintself/lib/fault"
	"fintself/lib/parse"
	"fintself/lib/scraper"
	"fintself/lib/scrapers/cl"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/cl/santander")

const BankID = "cl_santander"

const loginURL = "https://banco.santander.cl/personas"

var (
	loginEntryCandidates = []string{
		`button#btnIngresar`,
		`//a[contains(., "Ingresar")]`,
	}
	userFieldCandidates = []string{
		`input#rut`,
		`input[name="rut"]`,
	}
	passFieldCandidates = []string{
		`input#pass`,
		`input[name="clave"]`,
	}
	submitCandidates = []string{
		`button[type="submit"]`,
		`//button[contains(., "Ingresar")]`,
	}
	cardsMenuCandidates = []string{
		`a[href="#/tarjetas"]`,
		`//a[contains(., "Tarjetas")]`,
	}
	backToCardsCandidates = []string{
		`a[href="#/tarjetas"]`,
		`//a[contains(., "Volver")]`,
	}
)

const (
	dashboardMarker = `//span[contains(., "Mis Productos")]`
	loginErrorBox   = `div.login-message-error`
	cardList        = `div.credit-card-list`
	cardTiles       = `div.credit-card-list div.credit-card-item`
	billedTab       = `//a[contains(., "Movimientos facturados")]`
	unbilledTab     = `//a[contains(., "Movimientos no facturados")]`
	billedTable     = `section#facturados table`
	unbilledTable   = `section#no-facturados table`
	emptySection    = `//p[contains(., "No registra movimientos")]`
)

// Kinds tagged onto fragments by statement section.
const (
	KindBilled   = "facturado"
	KindUnbilled = "no_facturado"
)

var lastFourRegex = regexp.MustCompile(`(\d{4})\D*$`)

// Options narrow the extraction. An empty Cards list means every card on
// the profile; otherwise only cards whose number ends in one of the given
// last-four-digit groups are visited.
type Options struct {
	Cards []string
}

type Driver struct {
	cards        []string
	loginTimeout time.Duration
	tableTimeout time.Duration
}

func New(opts Options) *Driver {
	var cards []string
	for _, c := range opts.Cards {
		if c = strings.TrimSpace(c); c != "" {
			cards = append(cards, c)
		}
	}
	return &Driver{
		cards:        cards,
		loginTimeout: 40 * time.Second,
		tableTimeout: 20 * time.Second,
	}
}

func (d *Driver) BankID() string {
	return BankID
}

func (d *Driver) Profile() scraper.Profile {
	return cl.Profile()
}

func (d *Driver) Login(ctx context.Context, session browser.Session, creds scraper.Credentials) error {
	ctx, span := tracer.Start(ctx, "santander:Login")
	defer span.End()

	if err := session.Navigate(ctx, loginURL); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "opening portal", err)
	}
	if _, err := cl.ClickFirst(ctx, session, loginEntryCandidates); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "opening login form", err)
	}

	userField, err := cl.WaitFirstVisible(ctx, session, userFieldCandidates, 20*time.Second)
	if err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "waiting for login form", err)
	}
	if err := session.Fill(ctx, userField, cl.CleanRUT(creds.User)); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "entering user", err)
	}
	passField, ok := cl.FirstVisible(ctx, session, passFieldCandidates)
	if !ok {
		return fault.New(fault.CodeLogin, BankID, "password field not found")
	}
	if err := session.Fill(ctx, passField, creds.Password); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "entering password", err)
	}
	if _, err := cl.ClickFirst(ctx, session, submitCandidates); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "submitting credentials", err)
	}

	if _, err := cl.WaitFirstVisible(ctx, session, []string{dashboardMarker}, d.loginTimeout); err != nil {
		msg := "dashboard never appeared"
		if visible, _ := session.IsVisible(ctx, loginErrorBox); visible {
			if text, err := session.Text(ctx, loginErrorBox); err == nil {
				msg = parse.CollapseSpace(text)
			}
		}
		span.SetStatus(codes.Error, "login failed")
		return fault.New(fault.CodeLogin, BankID, msg)
	}

	slog.InfoContext(ctx, "logged in", "bank_id", BankID)
	return nil
}

func (d *Driver) Extract(ctx context.Context, session browser.Session) ([]scraper.Fragment, error) {
	ctx, span := tracer.Start(ctx, "santander:Extract")
	defer span.End()

	if err := d.openCards(ctx, session); err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "opening credit cards", err)
	}
	cards, err := d.listCards(ctx, session)
	if err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "listing credit cards", err)
	}
	span.SetAttributes(attribute.Int("cards", len(cards)))
	slog.InfoContext(ctx, "found credit cards", "bank_id", BankID, "count", len(cards))

	var fragments []scraper.Fragment
	var failures []error
	for _, last4 := range cards {
		if !d.wantCard(last4) {
			slog.DebugContext(ctx, "skipping card not in allow list",
				"bank_id", BankID, "card", last4)
			continue
		}

		if err := d.openCard(ctx, session, last4); err != nil {
			failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
				fmt.Sprintf("opening card %s", last4), err))
			continue
		}

		// one broken section must not cost the other, nor the other card
		billed, err := d.sectionMovements(ctx, session, billedTab, billedTable, last4, KindBilled, BilledAmount)
		fragments = append(fragments, billed...)
		if err != nil {
			failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
				fmt.Sprintf("card %s billed section", last4), err))
		}
		unbilled, err := d.sectionMovements(ctx, session, unbilledTab, unbilledTable, last4, KindUnbilled, UnbilledAmount)
		fragments = append(fragments, unbilled...)
		if err != nil {
			failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
				fmt.Sprintf("card %s unbilled section", last4), err))
		}

		if _, err := cl.ClickFirst(ctx, session, backToCardsCandidates); err != nil {
			failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID, "returning to card list", err))
			break
		}
	}

	span.SetAttributes(attribute.Int("fragments", len(fragments)))
	return fragments, errors.Join(failures...)
}

func (d *Driver) wantCard(last4 string) bool {
	if len(d.cards) == 0 {
		return true
	}
	for _, allowed := range d.cards {
		if allowed == last4 {
			return true
		}
	}
	return false
}

func (d *Driver) openCards(ctx context.Context, session browser.Session) error {
	if _, err := cl.ClickFirst(ctx, session, cardsMenuCandidates); err != nil {
		return err
	}
	_, err := cl.WaitFirstVisible(ctx, session, []string{cardList}, d.tableTimeout)
	return err
}

// listCards reads the card tiles and keeps the trailing four digits of
// each masked number, deduplicated in page order.
func (d *Driver) listCards(ctx context.Context, session browser.Session) ([]string, error) {
	markup, err := session.PageHTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var cards []string
	doc.Find(cardTiles).Each(func(_ int, tile *goquery.Selection) {
		last4 := LastFour(tile.Text())
		if last4 == "" || seen[last4] {
			return
		}
		seen[last4] = true
		cards = append(cards, last4)
	})
	if len(cards) == 0 {
		return nil, errors.New("no credit cards listed on the profile")
	}
	return cards, nil
}

func (d *Driver) openCard(ctx context.Context, session browser.Session, last4 string) error {
	tile := fmt.Sprintf(`//div[contains(@class, "credit-card-item") and contains(., %s)]`, cl.XPathLiteral(last4))
	if err := session.Click(ctx, tile); err != nil {
		return err
	}
	return session.WaitVisible(ctx, billedTab)
}

func (d *Driver) sectionMovements(ctx context.Context, session browser.Session, tab, table, last4, kind string, sign func(string) string) ([]scraper.Fragment, error) {
	if err := session.Click(ctx, tab); err != nil {
		return nil, err
	}
	sel, err := cl.WaitFirstVisible(ctx, session, []string{table, emptySection}, d.tableTimeout)
	if err != nil {
		return nil, err
	}
	if sel != table {
		return nil, nil
	}
	markup, err := session.HTML(ctx, table)
	if err != nil {
		return nil, err
	}
	return parseSection(markup, last4, kind, sign)
}

// parseSection turns one statement table into fragments. Zero amounts are
// netting artifacts and are skipped; unparseable amounts stay in so
// normalization can report them.
func parseSection(markup, last4, kind string, sign func(string) string) ([]scraper.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var fragments []scraper.Fragment
	doc.Find(`tbody tr`).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find(`td`)
		if cells.Length() < 3 {
			return
		}
		date := strings.TrimSpace(cells.Eq(0).Text())
		description := strings.TrimSpace(cells.Eq(1).Text())
		amount := sign(cells.Eq(2).Text())
		if date == "" || amount == "" {
			return
		}
		if value, err := parse.Amount(amount, parse.Chilean); err == nil && value.IsZero() {
			return
		}

		fragments = append(fragments, scraper.Fragment{
			DateText:    date,
			Description: description,
			AmountText:  amount,
			Currency:    "CLP",
			AccountRef:  last4,
			Kind:        kind,
			Raw: map[string]string{
				"seccion": kind,
			},
		})
	})
	return fragments, nil
}

// BilledAmount maps the billed statement's amount column onto the
// debit-negative canon. That section prints charges as plain positive
// numbers and payments or refunds with a minus, which is exactly
// inverted, so the sign flips.
func BilledAmount(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	if strings.HasPrefix(text, "-") {
		return strings.TrimPrefix(text, "-")
	}
	return "-" + text
}

// UnbilledAmount passes the current-period column through untouched; the
// portal already signs it debit-negative.
func UnbilledAmount(text string) string {
	return strings.TrimSpace(text)
}

// LastFour extracts the trailing four digits from a masked card label
// like "Tarjeta Visa **** 9722". Labels without them yield "".
func LastFour(label string) string {
	match := lastFourRegex.FindStringSubmatch(strings.TrimSpace(label))
	if len(match) < 2 {
		return ""
	}
	return match[1]
}
