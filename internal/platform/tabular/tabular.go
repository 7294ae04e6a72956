// Package tabular parses uploaded CSV and Excel files into an ordered header
// plus rows of named string values. The parser is the only place the service
// touches file formats; everything downstream works on Table.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Table is a parsed tabular file: the header columns in file order and one
// map per data row keyed by column name. Cells missing from short rows are
// empty strings.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// IsExcel reports whether the filename looks like a spreadsheet.
func IsExcel(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xls", ".xlsm":
		return true
	}
	return false
}

// IsCSV reports whether the filename looks like a CSV file.
func IsCSV(fileName string) bool {
	return strings.ToLower(filepath.Ext(fileName)) == ".csv"
}

// Parse dispatches on the file extension.
func Parse(fileName string, r io.Reader) (*Table, error) {
	switch {
	case IsCSV(fileName):
		return ParseCSV(r)
	case IsExcel(fileName):
		return ParseExcel(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// ParseCSV reads a CSV file. Input is decoded as UTF-8; files that are not
// valid UTF-8 fall back to Latin-1, matching how exported clinic sheets tend
// to arrive.
func ParseCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode latin-1 csv: %w", err)
		}
		data = decoded
	}

	// Strip a UTF-8 BOM if present so the first header cell scans clean.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	return buildTable(records), nil
}

// ParseExcel reads the first sheet of an Excel workbook.
func ParseExcel(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return &Table{}, nil
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read excel sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	return buildTable(records), nil
}

// buildTable turns raw records into a Table. The first record is the header;
// blank header cells are dropped along with their column. Rows shorter than
// the header yield empty strings for the missing cells.
func buildTable(records [][]string) *Table {
	header := records[0]

	var columns []string
	idx := make([]int, 0, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		columns = append(columns, name)
		idx = append(idx, i)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(columns))
		for j, col := range columns {
			if idx[j] < len(rec) {
				row[col] = strings.TrimSpace(rec[idx[j]])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Columns: columns, Rows: rows}
}
