package export

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/invoiceai/invoice-parser/internal/invoice"
)

// WriteCSV renders the flat per-line export: one row per line item, columns
// taken from the enabled configuration in order. RFC4180-like output:
// comma-separated, every field double-quote wrapped with internal quotes
// doubled, one header row, "\n" line endings, UTF-8.
func WriteCSV(items []invoice.LineItem, cols []Column) []byte {
	active := ActiveColumns(cols)

	var b bytes.Buffer
	headers := make([]string, len(active))
	for i, c := range active {
		headers[i] = c.Header
	}
	writeRow(&b, headers)

	row := make([]string, len(active))
	for _, it := range items {
		for i, c := range active {
			row[i] = itemValue(it, c.Key)
		}
		writeRow(&b, row)
	}
	return b.Bytes()
}

func writeRow(b *bytes.Buffer, fields []string) {
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

// itemValue reads a line-item field by column key. Unknown keys render as
// empty strings rather than failing the export.
func itemValue(it invoice.LineItem, key string) string {
	switch key {
	case KeyInvoiceFileName:
		return it.InvoiceFileName
	case KeyMatchedProductName:
		return it.MatchedProductName
	case KeyOriginalName:
		return it.OriginalName
	case KeySKU:
		return it.SKU
	case KeyQuantity:
		return formatNumber(it.Quantity)
	case KeyTotalQuantity:
		return formatNumber(it.TotalQuantity)
	case KeyUnitOfMeasure:
		return it.UnitOfMeasure
	case KeyUnitPrice:
		return formatNumber(it.UnitPrice)
	case KeyTotalPrice:
		return formatNumber(it.TotalPrice)
	}
	return ""
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
