package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

const inventorySheet = "Processed Inventory"

// BuildInventoryUpdateXLSX merges the processed batch back into the uploaded
// nomenclature: matched items accumulate totalQuantity onto their sku's
// original row (original columns round-trip untouched), and items without a
// nomenclature row are appended at the bottom. The result is the nomenclature
// spreadsheet updated with received stock.
func BuildInventoryUpdateXLSX(table *nomenclature.Table, items []invoice.LineItem) ([]byte, string, error) {
	if table == nil || len(table.Headers) == 0 {
		return nil, "", fmt.Errorf("no nomenclature loaded")
	}

	headers := make([]string, len(table.Headers))
	copy(headers, table.Headers)

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
	if skuIdx == -1 {
		return nil, "", fmt.Errorf("nomenclature has no sku column")
	}

	// Extend with the received-stock columns unless the upload already has
	// them.
	extraIdx := make(map[string]int)
	for _, extra := range []string{"totalQuantity", "unitPrice", "unitOfMeasure"} {
		idx := -1
		for i, h := range headers {
			if h == extra {
				idx = i
				break
			}
		}
		if idx == -1 {
			idx = len(headers)
			headers = append(headers, extra)
		}
		extraIdx[extra] = idx
	}

	type rowAcc struct {
		cells         []string
		totalQuantity float64
		unitPrice     float64
		unitOfMeasure string
		touched       bool
	}

	rows := make([]*rowAcc, 0, len(table.Rows))
	bySKU := make(map[string]*rowAcc)
	for _, raw := range table.Rows {
		// Ragged uploads may carry more cells than the header row; keep them.
		width := len(headers)
		if len(raw) > width {
			width = len(raw)
		}
		cells := make([]string, width)
		copy(cells, raw)
		r := &rowAcc{cells: cells}
		rows = append(rows, r)
		if sku := cellValue(raw, skuIdx); sku != "" {
			if _, dup := bySKU[sku]; !dup {
				bySKU[sku] = r
			}
		}
	}

	var unknown []*rowAcc
	for _, it := range items {
		if it.SKU != llm.MatchUnknown {
			if r, ok := bySKU[it.SKU]; ok {
				r.totalQuantity += it.TotalQuantity
				r.unitPrice = it.UnitPrice
				r.unitOfMeasure = it.UnitOfMeasure
				r.touched = true
				continue
			}
		}
		cells := make([]string, len(headers))
		if nameIdx >= 0 {
			cells[nameIdx] = it.OriginalName
		}
		cells[skuIdx] = it.SKU
		unknown = append(unknown, &rowAcc{
			cells:         cells,
			totalQuantity: it.TotalQuantity,
			unitPrice:     it.UnitPrice,
			unitOfMeasure: it.UnitOfMeasure,
			touched:       true,
		})
	}
	rows = append(rows, unknown...)

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	index, err := f.NewSheet(inventorySheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(inventorySheet, cell, h); err != nil {
			return nil, "", err
		}
	}
	for rowNo, r := range rows {
		for i, v := range r.cells {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, rowNo+2)
			if err := f.SetCellValue(inventorySheet, cell, v); err != nil {
				return nil, "", err
			}
		}
		if !r.touched {
			continue
		}
		// Received-stock columns are written typed so the workbook gets real
		// number cells.
		for _, tc := range []struct {
			idx int
			val any
		}{
			{extraIdx["totalQuantity"], r.totalQuantity},
			{extraIdx["unitPrice"], r.unitPrice},
			{extraIdx["unitOfMeasure"], r.unitOfMeasure},
		} {
			cell, _ := excelize.CoordinatesToCellName(tc.idx+1, rowNo+2)
			if err := f.SetCellValue(inventorySheet, cell, tc.val); err != nil {
				return nil, "", err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("xlsx write: %w", err)
	}

	name := fmt.Sprintf("Inventory_Update_%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	return buf.Bytes(), name, nil
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
