package parse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAmountChilean(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{"$1.234.567", "1234567"},
		{"-$45.000", "-45000"},
		{"$12,50", "12.5"},
		{"-1.234,56", "-1234.56"},
		{"(1.200)", "-1200"},
		{"$ 89.990", "89990"},
		{"US$ 1.000,25", "1000.25"},
		{"CLP 35.000", "35000"},
		{"+$500", "500"},
		{"0", "0"},
	}

	for _, test := range cases {
		t.Run(test.in, func(t *testing.T) {
			got, err := Amount(test.in, Chilean)
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(test.expect)),
				"got %s, expected %s", got, test.expect)
		})
	}
}

func TestAmountAnglo(t *testing.T) {
	got, err := Amount("-$1,234.56", Anglo)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("-1234.56")))
}

func TestAmountRejectsGarbage(t *testing.T) {
	cases := []string{"", "   ", "sin movimientos", "$", "1.2.3,4,5"}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := Amount(in, Chilean)
			require.Error(t, err)
		})
	}
}

func TestAmountIdempotent(t *testing.T) {
	first, err := Amount("-$1.234,56", Chilean)
	require.NoError(t, err)
	second, err := Amount("-$1.234,56", Chilean)
	require.NoError(t, err)
	require.True(t, first.Equal(second))
}

func TestDate(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	layouts := []string{"02/01/2006", "02-01-2006"}

	cases := []struct {
		in     string
		expect time.Time
	}{
		{"05/08/2025", time.Date(2025, time.August, 5, 0, 0, 0, 0, santiago)},
		{"31-12-2024", time.Date(2024, time.December, 31, 0, 0, 0, 0, santiago)},
		{" 05/08/2025 ", time.Date(2025, time.August, 5, 0, 0, 0, 0, santiago)},
	}

	for _, test := range cases {
		t.Run(test.in, func(t *testing.T) {
			got, err := Date(test.in, layouts, santiago)
			require.NoError(t, err)
			require.True(t, got.Equal(test.expect), "got %s, expected %s", got, test.expect)
		})
	}
}

func TestDateRejectsUnknownLayouts(t *testing.T) {
	_, err := Date("2025-08-05", []string{"02/01/2006"}, time.UTC)
	require.Error(t, err)

	_, err = Date("", []string{"02/01/2006"}, time.UTC)
	require.Error(t, err)
}

func TestDateNilLocationDefaultsUTC(t *testing.T) {
	got, err := Date("05/08/2025", []string{"02/01/2006"}, nil)
	require.NoError(t, err)
	require.Equal(t, time.UTC, got.Location())
}

func TestCollapseSpace(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{"COMPRA   SUPERMERCADO", "COMPRA SUPERMERCADO"},
		{"PAGO AUTOMATICO", "PAGO AUTOMATICO"},
		{"  TRANSFERENCIA\n\tA TERCEROS  ", "TRANSFERENCIA A TERCEROS"},
		{"", ""},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, CollapseSpace(test.in))
	}
}
