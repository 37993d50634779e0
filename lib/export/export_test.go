package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintself/lib/fault"
	"fintself/lib/movement"
	"fintself/lib/timezone"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleMovements() []movement.Movement {
	return []movement.Movement{
		{
			BankID:      "cl_banco_chile",
			Date:        time.Date(2025, 8, 2, 0, 0, 0, 0, timezone.Location),
			Description: "Compra supermercado",
			Amount:      decimal.NewFromInt(-12500),
			Currency:    "CLP",
			AccountRef:  "00-123-45678-09",
			Kind:        "cargo",
		},
		{
			BankID:      "cl_banco_chile",
			Date:        time.Date(2025, 8, 3, 0, 0, 0, 0, timezone.Location),
			Description: "Abono remuneraciones",
			Amount:      decimal.NewFromInt(1450000),
			Currency:    "CLP",
			AccountRef:  "00-123-45678-09",
			Kind:        "abono",
		},
	}
}

func TestFormatForPath(t *testing.T) {
	cases := []struct {
		path string
		want Format
	}{
		{"out.json", JSON},
		{"out.CSV", CSV},
		{"/tmp/deep/out.xlsx", XLSX},
	}
	for _, test := range cases {
		format, err := FormatForPath(test.path)
		require.NoError(t, err)
		require.Equal(t, test.want, format)
	}

	_, err := FormatForPath("movimientos.pdf")
	require.Equal(t, fault.CodeOutput, fault.CodeOf(err))
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, JSON, format)

	format, err = ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, Table, format)

	// xlsx is file-only
	_, err = ParseFormat("xlsx")
	require.Equal(t, fault.CodeOutput, fault.CodeOf(err))
}

func TestWriteFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movimientos.json")
	require.NoError(t, WriteFile(sampleMovements(), path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "cl_banco_chile", decoded[0]["bank_id"])
	require.Equal(t, "-12500", decoded[0]["amount"])
	require.Equal(t, "cargo", decoded[0]["movement_type"])
	require.Contains(t, decoded[0]["date"].(string), "2025-08-02T00:00:00")

	_, present := decoded[0]["raw_reference"]
	require.False(t, present, "empty optional fields must be omitted")
}

func TestRenderJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil, JSON))
	require.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestWriteFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movimientos.csv")
	require.NoError(t, WriteFile(sampleMovements(), path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, strings.Join(columns, ","), lines[0])
	require.Contains(t, lines[1], "2025-08-02 00:00:00")
	require.Contains(t, lines[1], "-12500")
	require.Contains(t, lines[2], "Abono remuneraciones")
}

func TestWriteFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movimientos.xlsx")
	require.NoError(t, WriteFile(sampleMovements(), path))

	workbook, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer workbook.Close()

	sheet := workbook.GetSheetName(0)
	cell := func(ref string) string {
		value, err := workbook.GetCellValue(sheet, ref)
		require.NoError(t, err)
		return value
	}
	require.Equal(t, "bank_id", cell("A1"))
	require.Equal(t, "amount", cell("D1"))
	require.Equal(t, "-12500", cell("D2"))
	require.Equal(t, "Abono remuneraciones", cell("C3"))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleMovements(), Table))

	out := buf.String()
	require.Contains(t, out, "DESCRIPTION")
	require.Contains(t, out, "Compra supermercado")
	require.Contains(t, out, "2025-08-02")
}

func TestWriteAtomicKeepsOldContentOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	boom := errors.New("render exploded")
	err := writeAtomic(path, func(io.Writer) error { return boom })
	require.ErrorIs(t, err, boom)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "old", string(content))

	// no stray temp files either
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "out.json")
	err := WriteFile(sampleMovements(), path)
	require.Equal(t, fault.CodeOutput, fault.CodeOf(err))
}
