package invoice

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/invoiceai/invoice-parser/internal/llm"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

// Workspace owns one mutable working set of line items at a time, together
// with the nomenclature table the items were matched against. It replaces the
// ambient page state of the browser app with an explicit session-scoped store:
// every operation goes through it, and a new processing run replaces the
// previous working set wholesale rather than merging into it.
//
// The generation counter guards against stale writes: every batch submission
// (and every nomenclature replacement) bumps it, and results carrying an older
// generation are discarded on arrival.
type Workspace struct {
	mu     sync.Mutex
	items  []LineItem
	table  *nomenclature.Table
	gen    uint64
	logger *slog.Logger
}

func NewWorkspace(logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{logger: logger}
}

// SetNomenclature replaces the matching context. Any in-progress or completed
// batch is invalidated because its items were matched against the old table.
func (w *Workspace) SetNomenclature(t *nomenclature.Table) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table = t
	w.items = nil
	w.gen++
	w.logger.Info("workspace.nomenclature.replaced",
		"products", len(t.Products),
		"generation", w.gen,
	)
}

// Nomenclature returns the current matching table (nil if none uploaded).
func (w *Workspace) Nomenclature() *nomenclature.Table {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.table
}

// NomenclatureText returns the raw delimited text of the current table, used
// as extraction context.
func (w *Workspace) NomenclatureText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.table == nil {
		return ""
	}
	return w.table.RawText
}

// BeginBatch registers a new processing run and returns its generation token.
// Results from earlier runs become stale the moment this returns.
func (w *Workspace) BeginBatch() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	return w.gen
}

// Generation returns the current generation token. Results carrying an older
// token are stale.
func (w *Workspace) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

// ReplaceItems installs a batch result, unless the generation token shows the
// batch was superseded while in flight. Returns false for stale results.
func (w *Workspace) ReplaceItems(gen uint64, items []LineItem) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		w.logger.Warn("workspace.batch.stale_result_discarded",
			"batch_generation", gen,
			"current_generation", w.gen,
			"items", len(items),
		)
		return false
	}
	w.items = items
	return true
}

// Items returns a copy of the working set in its stable order.
func (w *Workspace) Items() []LineItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]LineItem, len(w.items))
	copy(out, w.items)
	return out
}

// ItemsForFile returns a copy of one invoiceFileName group.
func (w *Workspace) ItemsForFile(fileName string) []LineItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []LineItem
	for _, it := range w.items {
		if it.InvoiceFileName == fileName {
			out = append(out, it)
		}
	}
	return out
}

// Reset clears the working set and invalidates any in-flight batch.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = nil
	w.gen++
}

// FieldPatch carries a partial field update; nil members are left untouched.
type FieldPatch struct {
	OriginalName       *string  `json:"originalName,omitempty"`
	MatchedProductName *string  `json:"matchedProductName,omitempty"`
	SKU                *string  `json:"sku,omitempty"`
	Quantity           *float64 `json:"quantity,omitempty"`
	TotalQuantity      *float64 `json:"totalQuantity,omitempty"`
	UnitOfMeasure      *string  `json:"unitOfMeasure,omitempty"`
	UnitPrice          *float64 `json:"unitPrice,omitempty"`
	TotalPrice         *float64 `json:"totalPrice,omitempty"`
}

// UpdateItem replaces only the given fields on the matching item. An unknown
// id is a no-op, not an error: UI-driven races must not crash the batch.
// Editing quantity or unitPrice recomputes totalPrice unless the same patch
// sets totalPrice directly (direct edits are accepted verbatim).
func (w *Workspace) UpdateItem(id string, patch FieldPatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	it := w.find(id)
	if it == nil {
		return
	}
	if patch.OriginalName != nil {
		it.OriginalName = *patch.OriginalName
	}
	if patch.MatchedProductName != nil {
		it.MatchedProductName = *patch.MatchedProductName
	}
	if patch.SKU != nil {
		it.SKU = *patch.SKU
	}
	if patch.Quantity != nil {
		it.Quantity = *patch.Quantity
	}
	if patch.TotalQuantity != nil {
		it.TotalQuantity = *patch.TotalQuantity
	}
	if patch.UnitOfMeasure != nil {
		it.UnitOfMeasure = *patch.UnitOfMeasure
	}
	if patch.UnitPrice != nil {
		it.UnitPrice = *patch.UnitPrice
	}
	if patch.TotalPrice != nil {
		it.TotalPrice = *patch.TotalPrice
	} else if patch.Quantity != nil || patch.UnitPrice != nil {
		it.TotalPrice = roundMoney(it.Quantity * it.UnitPrice)
	}
}

// ChangeMatchedProduct renames an item's matched product and resolves the sku:
// a nomenclature hit takes that product's sku, the UNKNOWN sentinel keeps
// UNKNOWN, and any other free-text rename becomes CUSTOM.
func (w *Workspace) ChangeMatchedProduct(id, newProductName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	it := w.find(id)
	if it == nil {
		return
	}
	it.MatchedProductName = newProductName
	if newProductName == llm.MatchUnknown {
		it.SKU = llm.MatchUnknown
		return
	}
	if p, ok := w.table.ProductByName(newProductName); ok {
		it.SKU = p.SKU
		return
	}
	it.SKU = llm.MatchCustom
}

// Numeric field names accepted by SetNumericField.
const (
	FieldQuantity      = "quantity"
	FieldTotalQuantity = "totalQuantity"
	FieldUnitPrice     = "unitPrice"
	FieldTotalPrice    = "totalPrice"
)

// SetNumericField applies user-typed text to a numeric field. Both "," and
// "." are accepted as the decimal point; fully empty input means 0; anything
// that does not parse leaves the prior value unchanged. Edits to quantity or
// unitPrice recompute totalPrice; edits to totalQuantity or totalPrice do not
// touch other fields.
func (w *Workspace) SetNumericField(id, field, rawText string) {
	v, ok := parseEditedNumber(rawText)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	it := w.find(id)
	if it == nil {
		return
	}
	switch field {
	case FieldQuantity:
		it.Quantity = v
	case FieldTotalQuantity:
		it.TotalQuantity = v
		return
	case FieldUnitPrice:
		it.UnitPrice = v
	case FieldTotalPrice:
		it.TotalPrice = v
		return
	default:
		return
	}
	it.TotalPrice = roundMoney(it.Quantity * it.UnitPrice)
}

func (w *Workspace) find(id string) *LineItem {
	for i := range w.items {
		if w.items[i].ID == id {
			return &w.items[i]
		}
	}
	return nil
}

func parseEditedNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func roundMoney(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}
