package scrapers

import (
	"testing"

	"fintself/lib/fault"

	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(Options{SantanderCards: []string{"9722"}})

	infos := r.List()
	require.Len(t, infos, 3)
	require.Equal(t, "cl_banco_chile", infos[0].BankID)
	require.Equal(t, "cl_banco_estado", infos[1].BankID)
	require.Equal(t, "cl_santander", infos[2].BankID)

	for _, info := range infos {
		driver, err := r.Resolve(info.BankID)
		require.NoError(t, err)
		require.Equal(t, info.BankID, driver.BankID())
	}

	_, err := r.Resolve("cl_desconocido")
	require.Equal(t, fault.CodeScraperNotFound, fault.CodeOf(err))
}
