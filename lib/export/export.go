// Package export renders normalized movements to files and the console.
// File writes stage through a temp file in the destination directory,
// fsync, and rename, so consumers polling the path never observe a
// partial file.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fintself/lib/fault"
	"fintself/lib/movement"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

// Format selects an output encoding.
type Format string

const (
	JSON  Format = "json"
	CSV   Format = "csv"
	XLSX  Format = "xlsx"
	Table Format = "table"
)

// tabular outputs drop the zone suffix; spreadsheets choke on RFC 3339
const tabularDateLayout = "2006-01-02 15:04:05"

var columns = []string{
	"bank_id", "date", "description", "amount",
	"currency", "account_reference", "movement_type", "raw_reference",
}

// FormatForPath infers the file format from the path's extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".csv":
		return CSV, nil
	case ".xlsx":
		return XLSX, nil
	}
	return "", fault.Newf(fault.CodeOutput, "",
		"unsupported output extension %q, use .json, .csv or .xlsx", filepath.Ext(path))
}

// ParseFormat validates a console format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case JSON:
		return JSON, nil
	case CSV:
		return CSV, nil
	case Table:
		return Table, nil
	}
	return "", fault.Newf(fault.CodeOutput, "",
		"unsupported console format %q, use json, csv or table", name)
}

// WriteFile renders movements to path in the format implied by its
// extension. The write is atomic: the destination either keeps its old
// content or holds the complete new file.
func WriteFile(movements []movement.Movement, path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, func(w io.Writer) error {
		return Render(w, movements, format)
	}); err != nil {
		return err
	}
	slog.Info("movements saved", "path", path, "format", format, "count", len(movements))
	return nil
}

// Render writes movements to w in the given format.
func Render(w io.Writer, movements []movement.Movement, format Format) error {
	switch format {
	case JSON:
		return renderJSON(w, movements)
	case CSV:
		return renderCSV(w, movements)
	case XLSX:
		return renderXLSX(w, movements)
	case Table:
		return renderTable(w, movements)
	}
	return fault.Newf(fault.CodeOutput, "", "unsupported format %q", format)
}

func renderJSON(w io.Writer, movements []movement.Movement) error {
	if movements == nil {
		movements = []movement.Movement{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(movements); err != nil {
		return fault.Wrap(fault.CodeOutput, "", "encoding json", err)
	}
	return nil
}

func renderCSV(w io.Writer, movements []movement.Movement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fault.Wrap(fault.CodeOutput, "", "writing csv header", err)
	}
	for _, m := range movements {
		record := []string{
			m.BankID,
			m.Date.Format(tabularDateLayout),
			m.Description,
			m.Amount.String(),
			m.Currency,
			m.AccountRef,
			m.Kind,
			m.RawRef,
		}
		if err := cw.Write(record); err != nil {
			return fault.Wrap(fault.CodeOutput, "", "writing csv row", err)
		}
	}
	cw.Flush()
	return fault.Wrap(fault.CodeOutput, "", "flushing csv", cw.Error())
}

func renderXLSX(w io.Writer, movements []movement.Movement) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fault.Wrap(fault.CodeOutput, "", "placing xlsx header", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fault.Wrap(fault.CodeOutput, "", "writing xlsx header", err)
		}
	}
	for i, m := range movements {
		values := []any{
			m.BankID,
			m.Date.Format(tabularDateLayout),
			m.Description,
			m.Amount.InexactFloat64(),
			m.Currency,
			m.AccountRef,
			m.Kind,
			m.RawRef,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fault.Wrap(fault.CodeOutput, "", "placing xlsx cell", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fault.Wrap(fault.CodeOutput, "", "writing xlsx cell", err)
			}
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fault.Wrap(fault.CodeOutput, "", "writing xlsx", err)
	}
	return nil
}

func renderTable(w io.Writer, movements []movement.Movement) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Bank", "Date", "Description", "Amount", "Currency", "Account", "Type"})
	for _, m := range movements {
		t.AppendRow(table.Row{
			m.BankID,
			m.Date.Format("2006-01-02"),
			m.Description,
			m.Amount.String(),
			m.Currency,
			m.AccountRef,
			m.Kind,
		})
	}
	t.Render()
	return nil
}

// writeAtomic stages the write next to the destination so the final
// rename never crosses filesystems.
func writeAtomic(path string, render func(io.Writer) error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fault.Wrap(fault.CodeOutput, "", "resolving output path", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".tmp-*"+filepath.Ext(abs))
	if err != nil {
		return fault.Wrap(fault.CodeOutput, "", "creating temp output", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := render(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fault.Wrap(fault.CodeOutput, "", "syncing output", err)
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.CodeOutput, "", "closing temp output", err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return fault.Wrap(fault.CodeOutput, "", "publishing output", err)
	}
	return nil
}
