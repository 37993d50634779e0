// Package bancochile drives the Banco de Chile retail portal: RUT login,
// the account selection modal, and checking-account movement extraction
// across every currency and account the profile holds.
package bancochile

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

var tracer = otel.Tracer("scrapers/cl/bancochile")

const BankID = "cl_banco_chile"

const (
	loginURL       = "https://sitiospublicos.bancochile.cl/personas"
	directLoginURL = "https://login.bancochile.cl/bancochile-web/persona/login.html"
)

// The portal ships several frontend variants at once depending on campaign
// and rollout, so every interaction is an ordered candidate list.
var (
	popupCloseCandidates = []string{
		`div.bch-modal button.close`,
		`button[aria-label="Cerrar"]`,
		`//button[contains(., "No, gracias")]`,
	}
	loginEntryCandidates = []string{
		`a.link.login`,
		`//a[contains(., "Banco en Línea")]`,
		`//button[contains(., "Ingresar")]`,
	}
	userFieldCandidates = []string{
		`input#iduserName`,
		`input[name="userName"]`,
		`input#rut`,
	}
	passFieldCandidates = []string{
		`input#idpassword`,
		`input[name="password"]`,
		`input#pass`,
	}
	submitCandidates = []string{
		`button#idIngresar`,
		`//button[contains(., "Ingresar")]`,
		`input[type="submit"]`,
	}
	anotherAccountCandidates = []string{
		`//button[contains(., "Seleccionar otra cuenta")]`,
		`//a[contains(., "Seleccionar otra cuenta")]`,
	}
)

const (
	productsButton   = `//button[contains(., "Mis Productos")]`
	movementsLink    = `a[href="#/movimientos/cuenta/saldos-movimientos"]`
	selectionHeader  = `//h2[contains(., "Seleccione una cuenta")]`
	currencySelect   = `mat-select[name="monedas"]`
	currencyOptions  = `mat-option span.mat-option-text`
	accountRadios    = `mat-radio-button .mat-radio-label-content`
	acceptButton     = `bch-button[id="modalPrimaryBtn"] button`
	movementsTable   = `table.bch-table`
	noMovementsAlert = `//div[contains(@class, "bch-alert") and contains(., "No existe información")]`
	loginErrorAlert  = `div.bch-alert`
	nextPageButton   = `button[aria-label="Próxima página"]`
	nextPageDisabled = `button[aria-label="Próxima página"]:disabled`
	paginatorLabel   = `div.mat-paginator-range-actions .mat-paginator-label`
)

var (
	currencyCodeRegex  = regexp.MustCompile(`\((.*?)\)`)
	accountNumberRegex = regexp.MustCompile(`([\d-]+)`)
)

// paginator bugs must not spin the extraction forever
const maxPages = 200

type Driver struct {
	loginTimeout time.Duration
	tableTimeout time.Duration
}

func New() *Driver {
	return &Driver{
		// the dashboard regularly takes over half a minute to render
		// after the credentials clear
		loginTimeout: 40 * time.Second,
		tableTimeout: 30 * time.Second,
	}
}

func (d *Driver) BankID() string {
	return BankID
}

func (d *Driver) Profile() scraper.Profile {
	return cl.Profile()
}

func (d *Driver) Login(ctx context.Context, session browser.Session, creds scraper.Credentials) error {
	ctx, span := tracer.Start(ctx, "bancochile:Login")
	defer span.End()

	if err := session.Navigate(ctx, loginURL); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "opening portal", err)
	}
	cl.DismissOverlays(ctx, session, popupCloseCandidates)

	// the public site hides the login form behind a campaign-dependent
	// entry point; when none shows, the login app URL still works
	if _, err := cl.ClickFirst(ctx, session, loginEntryCandidates); err != nil {
		slog.DebugContext(ctx, "no login entry point visible, using direct url")
		if err := session.Navigate(ctx, directLoginURL); err != nil {
			return fault.Wrap(fault.CodeLogin, BankID, "opening login app", err)
		}
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
		if err := session.Press(ctx, browser.KeyEnter); err != nil {
			return fault.Wrap(fault.CodeLogin, BankID, "submitting credentials", err)
		}
	}

	if _, err := cl.WaitFirstVisible(ctx, session, []string{productsButton}, d.loginTimeout); err != nil {
		msg := "dashboard never appeared"
		if visible, _ := session.IsVisible(ctx, loginErrorAlert); visible {
			if text, err := session.Text(ctx, loginErrorAlert); err == nil {
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
	ctx, span := tracer.Start(ctx, "bancochile:Extract")
	defer span.End()

	if err := d.openAccountSelection(ctx, session); err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "opening movements section", err)
	}

	currencies, err := d.currencyLabels(ctx, session)
	if err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "listing currencies", err)
	}
	span.SetAttributes(attribute.Int("currencies", len(currencies)))
	slog.InfoContext(ctx, "found currencies", "bank_id", BankID, "count", len(currencies))

	var fragments []scraper.Fragment
	var failures []error

	// each extraction leaves the selection modal for the movements view,
	// so everything after the first pass reopens it first
	needReopen := false
	for _, currencyLabel := range currencies {
		currency := currencyCode(currencyLabel)

		if needReopen {
			if err := d.reopenAccountSelection(ctx, session); err != nil {
				failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID, "returning to account selection", err))
				return fragments, errors.Join(failures...)
			}
			needReopen = false
		}
		if err := d.chooseCurrency(ctx, session, currencyLabel); err != nil {
			failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
				fmt.Sprintf("selecting currency %s", currency), err))
			continue
		}

		accounts, err := d.accountLabels(ctx, session)
		if err != nil {
			failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
				fmt.Sprintf("listing %s accounts", currency), err))
			continue
		}
		slog.InfoContext(ctx, "found accounts",
			"bank_id", BankID, "currency", currency, "count", len(accounts))

		for i, accountLabel := range accounts {
			account := accountNumber(accountLabel)

			if needReopen {
				if err := d.reopenAccountSelection(ctx, session); err != nil {
					failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID, "returning to account selection", err))
					return fragments, errors.Join(failures...)
				}
				if err := d.chooseCurrency(ctx, session, currencyLabel); err != nil {
					failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
						fmt.Sprintf("reselecting currency %s", currency), err))
					break
				}
				needReopen = false
			}

			if err := d.chooseAccount(ctx, session, i); err != nil {
				failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
					fmt.Sprintf("selecting account %s", account), err))
				continue
			}
			needReopen = true

			frs, err := d.accountMovements(ctx, session, currency, account)
			fragments = append(fragments, frs...)
			if err != nil {
				failures = append(failures, fault.Wrap(fault.CodeExtraction, BankID,
					fmt.Sprintf("account %s (%s)", account, currency), err))
			}
		}
	}

	span.SetAttributes(attribute.Int("fragments", len(fragments)))
	return fragments, errors.Join(failures...)
}

func (d *Driver) openAccountSelection(ctx context.Context, session browser.Session) error {
	// the dashboard replays the marketing popup after login
	cl.DismissOverlays(ctx, session, popupCloseCandidates)

	if _, err := cl.ClickFirst(ctx, session, []string{productsButton}); err != nil {
		return err
	}
	if err := session.Click(ctx, movementsLink); err != nil {
		return err
	}
	return session.WaitVisible(ctx, selectionHeader)
}

func (d *Driver) reopenAccountSelection(ctx context.Context, session browser.Session) error {
	if _, err := cl.ClickFirst(ctx, session, anotherAccountCandidates); err != nil {
		return err
	}
	return session.WaitVisible(ctx, selectionHeader)
}

// currencyLabels opens the currency dropdown, reads every option, and
// closes it again so the modal is back in a known state.
func (d *Driver) currencyLabels(ctx context.Context, session browser.Session) ([]string, error) {
	if err := session.Click(ctx, currencySelect); err != nil {
		return nil, err
	}
	markup, err := session.PageHTML(ctx)
	if err != nil {
		return nil, err
	}
	if err := session.Press(ctx, browser.KeyEscape); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	var labels []string
	doc.Find(currencyOptions).Each(func(_ int, option *goquery.Selection) {
		if text := strings.TrimSpace(option.Text()); text != "" {
			labels = append(labels, text)
		}
	})
	if len(labels) == 0 {
		return nil, errors.New("currency dropdown has no options")
	}
	return labels, nil
}

func (d *Driver) chooseCurrency(ctx context.Context, session browser.Session, label string) error {
	if err := session.Click(ctx, currencySelect); err != nil {
		return err
	}
	option := fmt.Sprintf(`//mat-option[.//span[contains(normalize-space(.), %s)]]`, cl.XPathLiteral(label))
	return session.Click(ctx, option)
}

func (d *Driver) accountLabels(ctx context.Context, session browser.Session) ([]string, error) {
	markup, err := session.PageHTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	var labels []string
	doc.Find(accountRadios).Each(func(_ int, radio *goquery.Selection) {
		if text := strings.TrimSpace(radio.Text()); text != "" {
			labels = append(labels, text)
		}
	})
	if len(labels) == 0 {
		return nil, errors.New("no accounts listed for the selected currency")
	}
	return labels, nil
}

func (d *Driver) chooseAccount(ctx context.Context, session browser.Session, index int) error {
	radio := fmt.Sprintf(`(//mat-radio-button)[%d]`, index+1)
	// the radio ignores the first click while the option list animates
	if err := session.Click(ctx, radio); err != nil {
		return err
	}
	if err := session.Click(ctx, radio); err != nil {
		return err
	}
	return session.Click(ctx, acceptButton)
}

// accountMovements walks the movements table page by page for the account
// currently confirmed in the modal.
func (d *Driver) accountMovements(ctx context.Context, session browser.Session, currency, account string) ([]scraper.Fragment, error) {
	ctx, span := tracer.Start(ctx, "bancochile:accountMovements")
	defer span.End()
	span.SetAttributes(
		attribute.String("currency", currency),
		attribute.String("account", account),
	)

	if _, err := cl.WaitFirstVisible(ctx, session, []string{movementsTable, noMovementsAlert}, d.tableTimeout); err != nil {
		return nil, err
	}
	if visible, _ := session.IsVisible(ctx, noMovementsAlert); visible {
		slog.InfoContext(ctx, "account has no movements",
			"bank_id", BankID, "account", account, "currency", currency)
		return nil, nil
	}

	var fragments []scraper.Fragment
	for page := 1; page <= maxPages; page++ {
		markup, err := session.HTML(ctx, movementsTable)
		if err != nil {
			return fragments, err
		}
		rows, err := parseMovementsTable(markup, currency, account)
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, rows...)
		slog.DebugContext(ctx, "extracted page",
			"bank_id", BankID, "account", account, "page", page, "rows", len(rows))

		if disabled, _ := session.IsVisible(ctx, nextPageDisabled); disabled {
			break
		}
		if visible, _ := session.IsVisible(ctx, nextPageButton); !visible {
			break
		}
		before, _ := session.Text(ctx, paginatorLabel)
		if err := session.Click(ctx, nextPageButton); err != nil {
			return fragments, err
		}
		if err := cl.WaitTextChange(ctx, session, paginatorLabel, before, d.tableTimeout); err != nil {
			return fragments, err
		}
	}
	return fragments, nil
}

// parseMovementsTable turns one rendered table page into fragments. Rows
// with no date or no amount are informational filler, and zero-amount rows
// are holds the bank nets out later; both are skipped.
func parseMovementsTable(markup, currency, account string) ([]scraper.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var fragments []scraper.Fragment
	doc.Find(`tr.bch-row:not(.table-collapse-row)`).Each(func(_ int, row *goquery.Selection) {
		date := strings.TrimSpace(row.Find(`td.cdk-column-fechaContable`).Text())
		description := strings.TrimSpace(row.Find(`td.cdk-column-descripcion`).Text())
		cargo := strings.TrimSpace(row.Find(`td.cdk-column-cargo`).Text())
		abono := strings.TrimSpace(row.Find(`td.cdk-column-abono`).Text())
		if date == "" || (cargo == "" && abono == "") {
			return
		}

		amount := SignedAmount(cargo, abono)
		if value, err := parse.Amount(amount, parse.Chilean); err == nil && value.IsZero() {
			return
		}
		kind := "abono"
		if cargo != "" {
			kind = "cargo"
		}

		fragments = append(fragments, scraper.Fragment{
			DateText:    date,
			Description: description,
			AmountText:  amount,
			Currency:    currency,
			AccountRef:  account,
			Kind:        kind,
			Raw: map[string]string{
				"cargo": cargo,
				"abono": abono,
			},
		})
	})
	return fragments, nil
}

// SignedAmount merges the portal's separate cargo (debit) and abono
// (credit) columns into one signed amount string. A non-empty cargo takes
// a leading minus; otherwise the abono passes through as is.
func SignedAmount(cargo, abono string) string {
	cargo = strings.TrimSpace(cargo)
	if cargo != "" {
		return "-" + cargo
	}
	return strings.TrimSpace(abono)
}

// currencyCode extracts the code from option labels like "Dólar (USD)".
// The peso option renders as "($)", and labels without parentheses
// default to pesos as well.
func currencyCode(label string) string {
	match := currencyCodeRegex.FindStringSubmatch(label)
	if len(match) < 2 {
		return "CLP"
	}
	code := strings.TrimSpace(match[1])
	if code == "" || code == "$" {
		return "CLP"
	}
	return code
}

// accountNumber pulls the digits-and-hyphens account id out of a radio
// label like "Cuenta Corriente 00-123-45678-09". Labels without one pass
// through whole.
func accountNumber(label string) string {
	match := accountNumberRegex.FindStringSubmatch(label)
	if len(match) < 2 {
		return strings.TrimSpace(label)
	}
	return match[1]
}
