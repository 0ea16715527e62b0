package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm"
)

// AggregatedRecord is one SKU group rolled up across invoices. Quantity,
// totalQuantity and totalPrice are sums over the contributing items; the
// product name, unit of measure and unit price come from the first-encountered
// item in the group; first occurrence is canonical, even when later invoices
// carry a different price. MinUnitPrice/MaxUnitPrice expose the per-group
// price spread for callers who want to see that variance.
type AggregatedRecord struct {
	SKU                string
	MatchedProductName string
	UnitOfMeasure      string
	UnitPrice          float64
	Quantity           float64
	TotalQuantity      float64
	TotalPrice         float64
	MinUnitPrice       float64
	MaxUnitPrice       float64
	InvoiceFileNames   []string // distinct, first-appearance order
	OriginalNames      []string // distinct, first-appearance order
}

// Aggregate groups line items by sku, excluding UNKNOWN items entirely: they
// represent unmatched noise, not inventory. Group order follows first
// appearance of each sku in the working set.
func Aggregate(items []invoice.LineItem) []AggregatedRecord {
	type acc struct {
		rec           *AggregatedRecord
		quantity      decimal.Decimal
		totalQuantity decimal.Decimal
		totalPrice    decimal.Decimal
		seenFiles     map[string]struct{}
		seenNames     map[string]struct{}
	}

	var order []string
	groups := make(map[string]*acc)

	for _, it := range items {
		if it.SKU == llm.MatchUnknown {
			continue
		}
		g, ok := groups[it.SKU]
		if !ok {
			g = &acc{
				rec: &AggregatedRecord{
					SKU:                it.SKU,
					MatchedProductName: it.MatchedProductName,
					UnitOfMeasure:      it.UnitOfMeasure,
					UnitPrice:          it.UnitPrice,
					MinUnitPrice:       it.UnitPrice,
					MaxUnitPrice:       it.UnitPrice,
				},
				seenFiles: make(map[string]struct{}),
				seenNames: make(map[string]struct{}),
			}
			groups[it.SKU] = g
			order = append(order, it.SKU)
		}
		g.quantity = g.quantity.Add(decimal.NewFromFloat(it.Quantity))
		g.totalQuantity = g.totalQuantity.Add(decimal.NewFromFloat(it.TotalQuantity))
		g.totalPrice = g.totalPrice.Add(decimal.NewFromFloat(it.TotalPrice))
		if it.UnitPrice < g.rec.MinUnitPrice {
			g.rec.MinUnitPrice = it.UnitPrice
		}
		if it.UnitPrice > g.rec.MaxUnitPrice {
			g.rec.MaxUnitPrice = it.UnitPrice
		}
		if _, seen := g.seenFiles[it.InvoiceFileName]; !seen {
			g.seenFiles[it.InvoiceFileName] = struct{}{}
			g.rec.InvoiceFileNames = append(g.rec.InvoiceFileNames, it.InvoiceFileName)
		}
		if _, seen := g.seenNames[it.OriginalName]; !seen {
			g.seenNames[it.OriginalName] = struct{}{}
			g.rec.OriginalNames = append(g.rec.OriginalNames, it.OriginalName)
		}
	}

	out := make([]AggregatedRecord, 0, len(order))
	for _, sku := range order {
		g := groups[sku]
		g.rec.Quantity, _ = g.quantity.Float64()
		g.rec.TotalQuantity, _ = g.totalQuantity.Float64()
		g.rec.TotalPrice, _ = g.totalPrice.Float64()
		out = append(out, *g.rec)
	}
	return out
}

// aggregatedValue reads an aggregated-record field by column key. Numeric
// keys return float64 so the spreadsheet gets real number cells, not text.
// Aggregated records have no id; identity-bearing text fields are the
// semicolon-joined distinct values seen across the group.
func aggregatedValue(rec AggregatedRecord, key string) any {
	switch key {
	case KeyInvoiceFileName:
		return strings.Join(rec.InvoiceFileNames, "; ")
	case KeyMatchedProductName:
		return rec.MatchedProductName
	case KeyOriginalName:
		return strings.Join(rec.OriginalNames, "; ")
	case KeySKU:
		return rec.SKU
	case KeyQuantity:
		return rec.Quantity
	case KeyTotalQuantity:
		return rec.TotalQuantity
	case KeyUnitOfMeasure:
		return rec.UnitOfMeasure
	case KeyUnitPrice:
		return rec.UnitPrice
	case KeyTotalPrice:
		return rec.TotalPrice
	case KeyMinUnitPrice:
		return rec.MinUnitPrice
	case KeyMaxUnitPrice:
		return rec.MaxUnitPrice
	}
	return ""
}

const aggregatedSheet = "Aggregated Inventory"

// BuildAggregatedXLSX renders the SKU rollup as a one-sheet workbook and
// returns the bytes together with the date-stamped file name.
func BuildAggregatedXLSX(records []AggregatedRecord, cols []Column) ([]byte, string, error) {
	active := ActiveColumns(cols)

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	index, err := f.NewSheet(aggregatedSheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", err
	}

	for i, c := range active {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(aggregatedSheet, cell, c.Header); err != nil {
			return nil, "", err
		}
	}

	for row, rec := range records {
		for i, c := range active {
			cell, _ := excelize.CoordinatesToCellName(i+1, row+2)
			if err := f.SetCellValue(aggregatedSheet, cell, aggregatedValue(rec, c.Key)); err != nil {
				return nil, "", err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("xlsx write: %w", err)
	}

	name := fmt.Sprintf("Aggregated_Inventory_%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	return buf.Bytes(), name, nil
}
