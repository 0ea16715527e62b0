package export

import "sort"

// Column keys understood by the exporters. The first nine address LineItem
// fields directly; the min/max price keys are synthetic fields produced by
// aggregation and only carry values in the aggregated export.
const (
	KeyInvoiceFileName    = "invoiceFileName"
	KeyMatchedProductName = "matchedProductName"
	KeyOriginalName       = "originalName"
	KeySKU                = "sku"
	KeyQuantity           = "quantity"
	KeyTotalQuantity      = "totalQuantity"
	KeyUnitOfMeasure      = "unitOfMeasure"
	KeyUnitPrice          = "unitPrice"
	KeyTotalPrice         = "totalPrice"
	KeyMinUnitPrice       = "minUnitPrice"
	KeyMaxUnitPrice       = "maxUnitPrice"
)

// Column is a user-configurable projection over exported records: rename via
// Header, toggle via Enabled, reorder via Order. Disabled columns are excluded
// from output entirely, not blanked.
type Column struct {
	Key     string `json:"key"`
	Header  string `json:"header"`
	Enabled bool   `json:"enabled"`
	Order   int    `json:"order"`
}

// DefaultColumns returns the default export template.
func DefaultColumns() []Column {
	return []Column{
		{Key: KeyInvoiceFileName, Header: "Invoice File", Enabled: true, Order: 0},
		{Key: KeyMatchedProductName, Header: "Matched Product Name", Enabled: true, Order: 1},
		{Key: KeyOriginalName, Header: "Original Name", Enabled: true, Order: 2},
		{Key: KeySKU, Header: "SKU", Enabled: true, Order: 3},
		{Key: KeyQuantity, Header: "Quantity", Enabled: true, Order: 4},
		{Key: KeyTotalQuantity, Header: "Total Quantity", Enabled: true, Order: 5},
		{Key: KeyUnitOfMeasure, Header: "Unit of Measure", Enabled: true, Order: 6},
		{Key: KeyUnitPrice, Header: "Unit Price", Enabled: true, Order: 7},
		{Key: KeyTotalPrice, Header: "Total Price", Enabled: true, Order: 8},
	}
}

// ActiveColumns filters to enabled columns sorted by Order. Ties keep
// first-seen order (stable sort).
func ActiveColumns(cols []Column) []Column {
	active := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.Enabled {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Order < active[j].Order
	})
	return active
}

// NormalizeOrder rewrites Order to the positional index after sorting, so a
// saved configuration always has dense 0..n-1 orders.
func NormalizeOrder(cols []Column) []Column {
	out := make([]Column, len(cols))
	copy(out, cols)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	for i := range out {
		out[i].Order = i
	}
	return out
}
