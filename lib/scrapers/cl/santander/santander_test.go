package santander

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fintself/lib/browser/browsertest"
	"fintself/lib/fault"
	"fintself/lib/scraper"
	"fintself/lib/scrapers/cl"

	"github.com/stretchr/testify/require"
)

const cardsPage = `<html><body>
<span>Mis Productos</span>
<div class="credit-card-list">
<div class="credit-card-item">Visa Gold **** 9722</div>
<div class="credit-card-item">Mastercard Black **** 1234</div>
</div>
</body></html>`

const billedMarkup = `<table><tbody>
<tr><td>01/07/2025</td><td>Supermercado Lider</td><td>$45.990</td></tr>
<tr><td>05/07/2025</td><td>Pago recibido</td><td>-$120.000</td></tr>
<tr><td>06/07/2025</td><td>Ajuste contable</td><td>$0</td></tr>
</tbody></table>`

const unbilledMarkup = `<table><tbody>
<tr><td>10/08/2025</td><td>Farmacia Cruz Verde</td><td>-$12.350</td></tr>
</tbody></table>`

func cardTile(last4 string) string {
	return fmt.Sprintf(`//div[contains(@class, "credit-card-item") and contains(., %s)]`, cl.XPathLiteral(last4))
}

func newExtractionSession() *browsertest.Session {
	session := browsertest.New()
	session.Page = cardsPage
	session.Markup[billedTable] = billedMarkup
	session.Markup[unbilledTable] = unbilledMarkup
	return session
}

func TestBilledAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"$45.990", "-$45.990"},
		{"-$120.000", "$120.000"},
		{"  $1.000  ", "-$1.000"},
		{"", ""},
	}
	for _, test := range cases {
		require.Equal(t, test.want, BilledAmount(test.in), test.in)
	}
}

func TestUnbilledAmount(t *testing.T) {
	require.Equal(t, "-$12.350", UnbilledAmount(" -$12.350 "))
	require.Equal(t, "$5.000", UnbilledAmount("$5.000"))
}

func TestLastFour(t *testing.T) {
	require.Equal(t, "9722", LastFour("Visa Gold **** 9722"))
	require.Equal(t, "9722", LastFour("**** 9722 (bloqueada)"))
	require.Equal(t, "1234", LastFour("4111111111111234"))
	require.Equal(t, "", LastFour("tarjeta sin número"))
}

// The billed statement displays charges positive and payments negative;
// after the sign mapping, normalized charges must come out negative.
func TestBilledSectionSigns(t *testing.T) {
	fragments, err := parseSection(billedMarkup, "9722", KindBilled, BilledAmount)
	require.NoError(t, err)
	// the zero-amount adjustment row drops
	require.Len(t, fragments, 2)

	profile := cl.Profile()
	charge, err := scraper.NormalizeFragment(BankID, profile, fragments[0])
	require.NoError(t, err)
	require.True(t, charge.Amount.IsNegative(), "billed charge must normalize negative")
	require.Equal(t, "-45990", charge.Amount.String())

	payment, err := scraper.NormalizeFragment(BankID, profile, fragments[1])
	require.NoError(t, err)
	require.True(t, payment.Amount.IsPositive(), "billed payment must normalize positive")
	require.Equal(t, "9722", payment.AccountRef)
	require.Equal(t, KindBilled, payment.Kind)
}

func TestUnbilledSectionSigns(t *testing.T) {
	fragments, err := parseSection(unbilledMarkup, "9722", KindUnbilled, UnbilledAmount)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	require.Equal(t, "-$12.350", fragments[0].AmountText)
	require.Equal(t, KindUnbilled, fragments[0].Kind)
}

func TestExtractWalksEveryCard(t *testing.T) {
	session := newExtractionSession()

	fragments, err := New(Options{}).Extract(context.Background(), session)
	require.NoError(t, err)
	// two billed plus one unbilled movement per card
	require.Len(t, fragments, 6)

	require.Equal(t, "9722", fragments[0].AccountRef)
	require.Equal(t, "1234", fragments[3].AccountRef)
	require.True(t, session.CalledWith("Click "+cardTile("9722")))
	require.True(t, session.CalledWith("Click "+cardTile("1234")))
}

func TestExtractHonorsCardFilter(t *testing.T) {
	session := newExtractionSession()

	fragments, err := New(Options{Cards: []string{"1234"}}).Extract(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, fragments, 3)
	for _, frag := range fragments {
		require.Equal(t, "1234", frag.AccountRef)
	}
	require.False(t, session.CalledWith("Click "+cardTile("9722")))
}

func TestExtractBrokenCardKeepsOthers(t *testing.T) {
	session := newExtractionSession()
	session.Fail["Click "+cardTile("9722")] = errors.New("tile never reacted")

	fragments, err := New(Options{}).Extract(context.Background(), session)
	require.Error(t, err)
	require.Equal(t, fault.CodeExtraction, fault.CodeOf(err))
	require.Contains(t, err.Error(), "opening card 9722")
	// the second card still contributes its movements
	require.Len(t, fragments, 3)
	require.Equal(t, "1234", fragments[0].AccountRef)
}

func TestLoginFillsCleanedRUT(t *testing.T) {
	session := browsertest.New()

	err := New(Options{}).Login(context.Background(), session, scraper.Credentials{
		User:     "7.654.321-0",
		Password: "clave",
	})
	require.NoError(t, err)
	require.Equal(t, "76543210", session.Values["input#rut"])
	require.Equal(t, "clave", session.Values["input#pass"])
}

func TestLoginSurfacesPortalError(t *testing.T) {
	session := browsertest.New()
	session.Hidden[dashboardMarker] = true
	session.Texts[loginErrorBox] = "Clave incorrecta"

	driver := New(Options{})
	driver.loginTimeout = 200 * time.Millisecond
	err := driver.Login(context.Background(), session, scraper.Credentials{User: "1-9", Password: "x"})
	require.Error(t, err)
	require.Equal(t, fault.CodeLogin, fault.CodeOf(err))
	require.Contains(t, err.Error(), "Clave incorrecta")
}

func TestDriverIdentity(t *testing.T) {
	driver := New(Options{Cards: []string{" 9722 ", ""}})
	require.Equal(t, "cl_santander", driver.BankID())
	require.Equal(t, []string{"9722"}, driver.cards)
}
