package nomenclature

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies the container of an uploaded tabular blob.
type Format int

const (
	FormatCSV Format = iota
	FormatXLSX
)

var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// DetectFormat picks a format from the file name extension, falling back to
// content sniffing (XLSX files are zip containers).
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	}
	if bytes.HasPrefix(data, xlsxMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// ParseRows decodes a tabular blob into a header row and data rows. The first
// sheet is used for spreadsheet containers. Cell values are always returned as
// strings regardless of the cell type in the source file.
func ParseRows(data []byte, format Format) ([]string, [][]string, error) {
	switch format {
	case FormatXLSX:
		return parseXLSXRows(data)
	default:
		return parseCSVRows(data)
	}
}

func parseCSVRows(data []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv read: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func parseXLSXRows(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx open: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

// RowsToCSV renders headers and rows back into RFC4180-like CSV bytes:
// every field double-quote wrapped, internal quotes doubled, "\n" line
// endings, UTF-8.
func RowsToCSV(headers []string, rows [][]string) []byte {
	var b bytes.Buffer
	writeCSVLine(&b, headers)
	for _, row := range rows {
		writeCSVLine(&b, row)
	}
	return b.Bytes()
}

func writeCSVLine(b *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// ToCSVText normalizes an uploaded nomenclature file to delimited text.
// Spreadsheet uploads are converted to CSV first so callers only ever deal
// with one representation, mirroring how the uploads reach the parser.
func ToCSVText(data []byte, filename string) (string, error) {
	if DetectFormat(filename, data) == FormatCSV {
		return string(data), nil
	}
	headers, rows, err := ParseRows(data, FormatXLSX)
	if err != nil {
		return "", err
	}
	return string(RowsToCSV(headers, rows)), nil
}
