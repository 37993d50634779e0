// Package bancoestado drives the BancoEstado retail portal and extracts
// CuentaRUT movements. The portal is heavy on overlays: holiday banners,
// infobars, and marketing modals all park on top of the dashboard, so the
// driver aggressively clears them before clicking anything.
package bancoestado

import (
	"context"
	"log/slog"
	"strconv"
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

var tracer = otel.Tracer("scrapers/cl/bancoestado")

const BankID = "cl_banco_estado"

const loginURL = "https://www.bancoestado.cl/home#/login"

const (
	rutInput    = `input#rut`
	passInput   = `input#pass`
	loginButton = `button#btnLogin`
	// the login sidenav keeps this class until the session is accepted
	loginPanelOpen = `#sidenavLoginApp.open-sidenav`
	movementsTable = `table`
	loginErrorBox  = `div.msd-banner-error, div.login-error`
)

// the RUT field ships readonly until the portal's own JS arms it
const unlockRUTScript = `document.querySelector('#rut').removeAttribute('readonly')`

// removeOverlaysScript drops the overlays that ignore their close buttons.
const removeOverlaysScript = `for (const sel of ['#remove-modal', '#evg-infobar-with-user-attr', '.evg-infobar-middle', 'msd-side-nav.msd-holidays-type-2']) {
  const el = document.querySelector(sel);
  if (el) el.remove();
}`

var (
	preLoginOverlays = []string{
		`div.modal button.close`,
		`button#btnCerrarModal`,
		`//button[contains(., "Cerrar")]`,
	}
	postLoginOverlays = []string{
		`#remove-modal button.close`,
		`button[aria-label="Cerrar notificación"]`,
		`//button[contains(., "Entendido")]`,
	}
	movementsButtonCandidates = []string{
		`button[aria-label*="movimientos de CuentaRUT"]`,
		`button[aria-label*="Ver movimientos"]`,
		`//button[contains(., "Ver movimientos")]`,
	}
	noMovementsCandidates = []string{
		`//div[contains(text(), "No hay movimientos")]`,
		`//span[contains(text(), "Sin movimientos")]`,
		`.no-data`,
	}
)

type Driver struct {
	loginTimeout time.Duration
	tableTimeout time.Duration
}

func New() *Driver {
	return &Driver{
		loginTimeout: 30 * time.Second,
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
	ctx, span := tracer.Start(ctx, "bancoestado:Login")
	defer span.End()

	if err := session.Navigate(ctx, loginURL); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "opening portal", err)
	}
	if _, err := cl.WaitFirstVisible(ctx, session, []string{rutInput}, 20*time.Second); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "waiting for login form", err)
	}

	if err := session.Evaluate(ctx, unlockRUTScript, nil); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "unlocking user field", err)
	}
	if err := session.Click(ctx, rutInput); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "focusing user field", err)
	}
	if err := session.Type(ctx, rutInput, cl.CleanRUT(creds.User)); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "entering user", err)
	}
	if err := session.Fill(ctx, passInput, creds.Password); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "entering password", err)
	}

	cl.DismissOverlays(ctx, session, preLoginOverlays)
	if err := session.Click(ctx, loginButton); err != nil {
		return fault.Wrap(fault.CodeLogin, BankID, "submitting credentials", err)
	}

	if err := cl.WaitHidden(ctx, session, loginPanelOpen, d.loginTimeout); err != nil {
		msg := "login panel never closed"
		if visible, _ := session.IsVisible(ctx, loginErrorBox); visible {
			if text, err := session.Text(ctx, loginErrorBox); err == nil {
				msg = parse.CollapseSpace(text)
			}
		}
		span.SetStatus(codes.Error, "login failed")
		return fault.New(fault.CodeLogin, BankID, msg)
	}

	d.dismissAnnoyances(ctx, session)
	slog.InfoContext(ctx, "logged in", "bank_id", BankID)
	return nil
}

// dismissAnnoyances clears whatever is parked on top of the dashboard.
// Everything here is best effort; a banner that refuses to die is handled
// by the removal script, and one that survives even that gets reported by
// whatever click it ends up swallowing.
func (d *Driver) dismissAnnoyances(ctx context.Context, session browser.Session) {
	if err := session.Evaluate(ctx, `window.scrollTo(0, 0)`, nil); err != nil {
		slog.DebugContext(ctx, "scroll to top failed", "err", err)
	}
	cl.DismissOverlays(ctx, session, postLoginOverlays)
	if err := session.Press(ctx, browser.KeyEscape); err != nil {
		slog.DebugContext(ctx, "escape press failed", "err", err)
	}
	if err := session.Evaluate(ctx, removeOverlaysScript, nil); err != nil {
		slog.DebugContext(ctx, "overlay removal script failed", "err", err)
	}
}

func (d *Driver) Extract(ctx context.Context, session browser.Session) ([]scraper.Fragment, error) {
	ctx, span := tracer.Start(ctx, "bancoestado:Extract")
	defer span.End()

	if err := d.openMovements(ctx, session); err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "opening movements view", err)
	}

	candidates := append([]string{movementsTable}, noMovementsCandidates...)
	sel, err := cl.WaitFirstVisible(ctx, session, candidates, d.tableTimeout)
	if err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "movements never rendered", err)
	}
	if sel != movementsTable {
		slog.InfoContext(ctx, "account has no movements", "bank_id", BankID)
		return nil, nil
	}

	markup, err := session.HTML(ctx, movementsTable)
	if err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "reading movements table", err)
	}
	fragments, err := parseMovements(markup)
	if err != nil {
		return nil, fault.Wrap(fault.CodeExtraction, BankID, "parsing movements table", err)
	}

	span.SetAttributes(attribute.Int("fragments", len(fragments)))
	return fragments, nil
}

// openMovements clicks through to the CuentaRUT movements view. Overlays
// swallow the first click now and then, so a failed attempt clears them
// and tries once more.
func (d *Driver) openMovements(ctx context.Context, session browser.Session) error {
	if _, err := cl.ClickFirst(ctx, session, movementsButtonCandidates); err == nil {
		return nil
	}
	d.dismissAnnoyances(ctx, session)
	_, err := cl.ClickFirst(ctx, session, movementsButtonCandidates)
	return err
}

// parseMovements turns the rendered movements table into fragments. The
// first cell is an expander control; date, description, channel, and
// amount follow. Zero amounts are informational holds and are skipped,
// while unparseable amounts stay in so normalization can report them.
func parseMovements(markup string) ([]scraper.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var fragments []scraper.Fragment
	doc.Find(`tbody tr`).Each(func(i int, row *goquery.Selection) {
		cells := row.Find(`td`)
		if cells.Length() < 5 {
			return
		}
		date := strings.TrimSpace(cells.Eq(1).Text())
		description := strings.TrimSpace(cells.Eq(2).Text())
		channel := strings.TrimSpace(cells.Eq(3).Text())
		amount := MovementAmount(cells.Eq(4).Text())
		if date == "" || amount == "" {
			return
		}
		if value, err := parse.Amount(amount, parse.Chilean); err == nil && value.IsZero() {
			return
		}

		kind := "abono"
		if strings.HasPrefix(amount, "-") {
			kind = "cargo"
		}
		fragments = append(fragments, scraper.Fragment{
			DateText:    date,
			Description: description,
			AmountText:  amount,
			Currency:    "CLP",
			AccountRef:  "cuenta_rut",
			Kind:        kind,
			Raw: map[string]string{
				"canal":     channel,
				"row_index": strconv.Itoa(i),
			},
		})
	})
	return fragments, nil
}

// MovementAmount passes the table's amount column through untouched; the
// portal already renders debits with a leading minus.
func MovementAmount(text string) string {
	return strings.TrimSpace(text)
}
