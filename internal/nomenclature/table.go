package nomenclature

import (
	"log/slog"
	"strings"
)

// Product is an immutable reference record derived from the nomenclature.
// SKU is the natural key; Name is display-only and not guaranteed unique.
type Product struct {
	Name string `json:"name"`
	SKU  string `json:"sku"`
}

// Table is the parsed nomenclature: the product list used for matching plus
// the original header row and raw row data, kept so unrecognized columns can
// round-trip on export. A Table is replaced wholesale on re-upload, never
// partially mutated.
type Table struct {
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"rows"`
	Products []Product  `json:"products"`
	RawText  string     `json:"rawText"`
}

// Parse turns raw delimited text into a Table. It fails softly: when the
// header row is absent, fewer than two rows exist, or the "name"/"sku"
// columns cannot be located, the product list comes back empty and callers
// must treat that as "cannot support matching", not as a fatal error.
func Parse(raw string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{RawText: raw}
	if strings.TrimSpace(raw) == "" {
		return t
	}

	headers, rows, err := ParseRows([]byte(raw), FormatCSV)
	if err != nil {
		logger.Warn("nomenclature.parse.failed", "error", err)
		return t
	}
	t.Headers = headers
	t.Rows = rows

	if len(headers) == 0 || len(rows) == 0 {
		logger.Warn("nomenclature.parse.too_few_rows", "rows", len(rows))
		return t
	}

	nameIdx, skuIdx := -1, -1
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			if nameIdx == -1 {
				nameIdx = i
			}
		case "sku":
			if skuIdx == -1 {
				skuIdx = i
			}
		}
	}
	if nameIdx == -1 || skuIdx == -1 {
		logger.Warn("nomenclature.parse.columns_missing",
			"has_name", nameIdx != -1,
			"has_sku", skuIdx != -1,
		)
		return t
	}

	for _, row := range rows {
		p := Product{
			Name: cellAt(row, nameIdx),
			SKU:  cellAt(row, skuIdx),
		}
		// Rows without both identity fields stay in Rows for round-tripping
		// but cannot serve as match targets.
		if p.Name == "" || p.SKU == "" {
			continue
		}
		t.Products = append(t.Products, p)
	}

	logger.Info("nomenclature.parse.ok",
		"rows", len(rows),
		"products", len(t.Products),
	)
	return t
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// HasProducts reports whether the table can support matching.
func (t *Table) HasProducts() bool {
	return t != nil && len(t.Products) > 0
}

// ProductByName looks up a product by its display name.
func (t *Table) ProductByName(name string) (Product, bool) {
	if t == nil {
		return Product{}, false
	}
	for _, p := range t.Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// ProductBySKU looks up a product by its natural key.
func (t *Table) ProductBySKU(sku string) (Product, bool) {
	if t == nil {
		return Product{}, false
	}
	for _, p := range t.Products {
		if p.SKU == sku {
			return p, true
		}
	}
	return Product{}, false
}
