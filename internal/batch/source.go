// Package batch rectifies many subjects read from a CSV or XLSX sheet.
package batch

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// SourceOptions configures how a subjects file is read.
type SourceOptions struct {
	// Encoding names the charset of a CSV file (e.g. "windows-1252").
	// Empty means UTF-8.
	Encoding string
	// Sheet selects an XLSX sheet by name; the first sheet when empty.
	Sheet string
}

// ReadFile reads all rows of a .csv, .tsv or .xlsx file, header included.
func ReadFile(ctx context.Context, path string, opts SourceOptions) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts.Sheet)
	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		comma := ','
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			comma = '\t'
		}
		return ReadCSV(ctx, f, comma, opts.Encoding)
	default:
		return nil, eris.Errorf("batch: unsupported file type %q (want .csv, .tsv or .xlsx)", filepath.Ext(path))
	}
}

// ReadCSV reads delimited rows from r, decoding from the named charset.
func ReadCSV(ctx context.Context, r io.Reader, comma rune, encoding string) ([][]string, error) {
	if encoding != "" && !strings.EqualFold(encoding, "utf-8") {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: unsupported encoding %q", encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.Comment = '#'
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "batch: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		rows = append(rows, record)
	}
}

// ReadXLSX reads every row of one sheet as strings.
func ReadXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open xlsx")
	}

	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("batch: sheet %q not found", sheetName)
		}
		sheet = s
	case len(f.Sheets) == 0:
		return nil, eris.New("batch: workbook has no sheets")
	default:
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
