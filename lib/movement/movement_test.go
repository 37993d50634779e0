package movement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := Movement{
		BankID:      "cl_banco_chile",
		Date:        time.Date(2025, time.August, 5, 0, 0, 0, 0, time.UTC),
		Description: "COMPRA SUPERMERCADO",
		Amount:      decimal.NewFromInt(-45000),
		Currency:    "CLP",
		AccountRef:  "001-23456-78",
		Kind:        "cargo",
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Movement)
	}{
		{"missing bank id", func(m *Movement) { m.BankID = "" }},
		{"missing date", func(m *Movement) { m.Date = time.Time{} }},
		{"missing currency", func(m *Movement) { m.Currency = "" }},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			m := valid
			test.mutate(&m)
			require.Error(t, m.Validate())
		})
	}
}

func TestZeroAmountIsValid(t *testing.T) {
	m := Movement{
		BankID:   "cl_estado",
		Date:     time.Date(2025, time.August, 5, 0, 0, 0, 0, time.UTC),
		Currency: "CLP",
	}
	require.NoError(t, m.Validate())
	require.True(t, m.Amount.IsZero())
}
