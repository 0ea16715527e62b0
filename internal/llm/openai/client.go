package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceai/invoice-parser/internal/llm"
)

// ExtractLineItems implements llm.LineItemExtractor using chat/completions
// with an inline image part. The full nomenclature text rides along as
// matching context so the model resolves products against real inventory
// instead of inventing free-text guesses.
func (c *Client) ExtractLineItems(ctx context.Context, req llm.ExtractRequest) ([]llm.ExtractedItem, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"file", req.FileName,
		"mime_type", req.MimeType,
		"image_b64_len", len(req.ImageBase64),
		"nomenclature_len", len(req.NomenclatureText),
	)

	if limit := c.cfg.MaxImageMB * 1024 * 1024; base64.StdEncoding.DecodedLen(len(req.ImageBase64)) > limit {
		err := fmt.Errorf("document exceeds %dMB vision limit", c.cfg.MaxImageMB)
		c.log.Error("llm.extract.too_large", "req_id", rid, "file", req.FileName, "error", err)
		return nil, nil, err
	}

	schema := llm.BuildLineItemsJSONSchema()
	dataURL := "data:" + req.MimeType + ";base64," + req.ImageBase64

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt()},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": buildUserPrompt(req.NomenclatureText)},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, httpErr := llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if httpErr != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "file", req.FileName, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("no choices in completion response")
	}

	content := stripCodeFences(cc.Choices[0].Message.Content)
	rawContent := []byte(content)

	items, err := llm.DecodeLineItems(rawContent)
	if err != nil {
		c.log.Error("llm.extract.invalid_items",
			"req_id", rid, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, rawContent, err
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"file", req.FileName,
		"items", len(items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return items, rawContent, nil
}

// stripCodeFences drops a surrounding markdown code block if the model wrapped
// its JSON in one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func buildSystemPrompt() string {
	parts := []string{
		"You are an invoice parser. Return ONLY a JSON array that matches the JSON Schema provided.",
		"Each element is one purchased line item read from the invoice document.",
		"Match every line item against the product nomenclature supplied by the user:",
		"set matchedProductName to the nomenclature 'name' and sku to the nomenclature 'sku' of the best match.",
		"If you are not confident about a match, set BOTH matchedProductName and sku to \"UNKNOWN\", never one without the other.",
		"originalName is the product description exactly as printed on the invoice.",
		"quantity is the count of packs/units as stated on the line.",
		"totalQuantity is the absolute unit count after unpacking multi-unit packs",
		"(e.g. '2 boxes of 5kg' has quantity 2 and totalQuantity 10); when no pack size is discernible, totalQuantity equals quantity.",
		"unitOfMeasure is e.g. \"kg\", \"pcs\" or \"l\"; use \"pcs\" when the invoice does not state one.",
		"unitPrice is the price per single unit and totalPrice the line total as printed.",
		"When you can locate the line on the page, include boundingBox as 4 vertices with normalized coordinates in [0,1]; omit it otherwise.",
		"Never output null. Return an empty array if the document contains no line items.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(nomenclature string) string {
	var b strings.Builder
	b.WriteString("Product nomenclature (CSV, columns include name and sku):\n")
	b.WriteString(nomenclature)
	b.WriteString("\n\nParse the attached invoice document and return the line items as JSON.")
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
