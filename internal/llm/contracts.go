package llm

import "context"

// Sentinel values the document-understanding service and the edit engine
// agree on. UNKNOWN marks an item the matcher could not resolve against the
// nomenclature; CUSTOM marks an item manually renamed to something outside it.
const (
	MatchUnknown = "UNKNOWN"
	MatchCustom  = "CUSTOM"
)

// Vertex is one normalized-coordinate corner of an item's bounding box on the
// source image, in [0,1].
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ExtractedItem is one invoice line as returned by the service: the
// InvoiceLineItem shape minus id and invoiceFileName, which the normalizer
// assigns afterwards.
type ExtractedItem struct {
	MatchedProductName string   `json:"matchedProductName"`
	OriginalName       string   `json:"originalName"`
	Quantity           float64  `json:"quantity"`
	UnitPrice          float64  `json:"unitPrice"`
	TotalPrice         float64  `json:"totalPrice"`
	SKU                string   `json:"sku"`
	TotalQuantity      float64  `json:"totalQuantity"`
	UnitOfMeasure      string   `json:"unitOfMeasure"`
	BoundingBox        []Vertex `json:"boundingBox,omitempty"`
}

// ExtractRequest carries one invoice document plus the matching context.
type ExtractRequest struct {
	FileName         string
	MimeType         string
	ImageBase64      string // raw base64, no data-URL prefix
	NomenclatureText string
}

// LineItemExtractor is the interface the batch orchestrator depends on.
type LineItemExtractor interface {
	ExtractLineItems(ctx context.Context, req ExtractRequest) ([]ExtractedItem, []byte /*rawJSON*/, error)
}
