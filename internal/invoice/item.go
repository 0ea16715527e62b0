package invoice

import (
	"github.com/google/uuid"

	"github.com/invoiceai/invoice-parser/internal/llm"
)

// LineItem is the central mutable entity: one extracted invoice row, editable
// in place until the batch is reset or replaced.
type LineItem struct {
	ID                 string       `json:"id"`
	InvoiceFileName    string       `json:"invoiceFileName"`
	OriginalName       string       `json:"originalName"`
	MatchedProductName string       `json:"matchedProductName"`
	SKU                string       `json:"sku"`
	Quantity           float64      `json:"quantity"`
	TotalQuantity      float64      `json:"totalQuantity"`
	UnitOfMeasure      string       `json:"unitOfMeasure"`
	UnitPrice          float64      `json:"unitPrice"`
	TotalPrice         float64      `json:"totalPrice"`
	BoundingBox        []llm.Vertex `json:"boundingBox,omitempty"`
}

// NormalizeItems turns one extraction result into fully-formed line items:
// each gets a fresh unique id and the source file name it was extracted from.
// Pure transformation, no I/O.
func NormalizeItems(extracted []llm.ExtractedItem, invoiceFileName string) []LineItem {
	items := make([]LineItem, 0, len(extracted))
	for _, e := range extracted {
		items = append(items, LineItem{
			ID:                 uuid.New().String(),
			InvoiceFileName:    invoiceFileName,
			OriginalName:       e.OriginalName,
			MatchedProductName: e.MatchedProductName,
			SKU:                e.SKU,
			Quantity:           e.Quantity,
			TotalQuantity:      e.TotalQuantity,
			UnitOfMeasure:      e.UnitOfMeasure,
			UnitPrice:          e.UnitPrice,
			TotalPrice:         e.TotalPrice,
			BoundingBox:        e.BoundingBox,
		})
	}
	return items
}

// FileGroup is one invoiceFileName partition of the working set, in
// first-appearance order of the file name.
type FileGroup struct {
	FileName string     `json:"fileName"`
	Items    []LineItem `json:"items"`
}

// GroupByFile partitions items by their source file, preserving both item
// order within a group and first-appearance order across groups.
func GroupByFile(items []LineItem) []FileGroup {
	var groups []FileGroup
	index := make(map[string]int)
	for _, it := range items {
		i, ok := index[it.InvoiceFileName]
		if !ok {
			i = len(groups)
			index[it.InvoiceFileName] = i
			groups = append(groups, FileGroup{FileName: it.InvoiceFileName})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}
