package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

func TestBatch(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Batch Suite")
}

// mockExtractor is a mock implementation of llm.LineItemExtractor keyed by
// file name.
type mockExtractor struct {
	mu            sync.Mutex
	responses     map[string][]llm.ExtractedItem
	errs          map[string]error
	requests      []llm.ExtractRequest
	onExtract     func()
	blockOnCancel map[string]bool
}

func newMockExtractor() *mockExtractor {
	return &mockExtractor{
		responses:     make(map[string][]llm.ExtractedItem),
		errs:          make(map[string]error),
		blockOnCancel: make(map[string]bool),
	}
}

func (m *mockExtractor) ExtractLineItems(ctx context.Context, req llm.ExtractRequest) ([]llm.ExtractedItem, []byte, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.onExtract != nil {
		m.onExtract()
	}
	if m.blockOnCancel[req.FileName] {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if err := m.errs[req.FileName]; err != nil {
		return nil, nil, err
	}
	return m.responses[req.FileName], nil, nil
}

func fileInput(name string) FileInput {
	return FileInput{Name: name, MimeType: "image/png", Data: []byte("fake-image-bytes")}
}

func extractedItem(name, sku string) llm.ExtractedItem {
	return llm.ExtractedItem{
		MatchedProductName: name,
		OriginalName:       name,
		SKU:                sku,
		Quantity:           1,
		TotalQuantity:      1,
		UnitOfMeasure:      "pcs",
		UnitPrice:          2,
		TotalPrice:         2,
	}
}

var _ = Describe("Processor", func() {
	var (
		extractor *mockExtractor
		ws        *invoice.Workspace
		proc      *Processor
		files     []FileInput
		res       *Result
		err       error
	)

	BeforeEach(func() {
		extractor = newMockExtractor()
		ws = invoice.NewWorkspace(nil)
		proc = NewProcessor(extractor, ws, 2, nil)
	})

	JustBeforeEach(func() {
		res, err = proc.Process(context.Background(), files)
	})

	When("every file extracts successfully", func() {
		BeforeEach(func() {
			files = []FileInput{fileInput("a.png"), fileInput("b.png")}
			extractor.responses["a.png"] = []llm.ExtractedItem{extractedItem("Widget", "W-001")}
			extractor.responses["b.png"] = []llm.ExtractedItem{
				extractedItem("Gadget", "G-002"),
				extractedItem("Widget", "W-001"),
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should collect the items in file order", func() {
			Expect(res.Items).To(HaveLen(3))
			Expect(res.Items[0].InvoiceFileName).To(Equal("a.png"))
			Expect(res.Items[1].InvoiceFileName).To(Equal("b.png"))
			Expect(res.Items[2].InvoiceFileName).To(Equal("b.png"))
		})

		It("should report no failures", func() {
			Expect(res.Failures).To(BeEmpty())
		})

		It("should install the items into the workspace", func() {
			Expect(ws.Items()).To(HaveLen(3))
		})

		It("should assign a fresh id to every item", func() {
			seen := make(map[string]bool)
			for _, it := range res.Items {
				Expect(it.ID).NotTo(BeEmpty())
				Expect(seen[it.ID]).To(BeFalse())
				seen[it.ID] = true
			}
		})
	})

	When("one file out of three fails", func() {
		BeforeEach(func() {
			files = []FileInput{fileInput("a.png"), fileInput("b.png"), fileInput("c.png")}
			extractor.responses["a.png"] = []llm.ExtractedItem{extractedItem("Widget", "W-001")}
			extractor.errs["b.png"] = errors.New("image too blurry")
			extractor.responses["c.png"] = []llm.ExtractedItem{extractedItem("Gadget", "G-002")}
		})

		It("should settle without an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep the items of the surviving files", func() {
			Expect(res.Items).To(HaveLen(2))
			Expect(res.Items[0].InvoiceFileName).To(Equal("a.png"))
			Expect(res.Items[1].InvoiceFileName).To(Equal("c.png"))
		})

		It("should record the failed file with its cause", func() {
			Expect(res.Failures).To(HaveLen(1))
			Expect(res.Failures[0].File).To(Equal("b.png"))
			Expect(res.Failures[0].Cause).To(ContainSubstring("image too blurry"))
		})

		It("should still install the partial result", func() {
			Expect(ws.Items()).To(HaveLen(2))
		})
	})

	When("every file fails", func() {
		BeforeEach(func() {
			files = []FileInput{fileInput("a.png"), fileInput("b.png")}
			extractor.errs["a.png"] = errors.New("timeout")
			extractor.errs["b.png"] = errors.New("bad image")
		})

		It("should return the all-failed error", func() {
			Expect(err).To(MatchError(common.ErrAllExtractionsFailed))
		})

		It("should still report every failure", func() {
			Expect(res.Failures).To(HaveLen(2))
		})

		It("should not install anything into the workspace", func() {
			Expect(ws.Items()).To(BeEmpty())
		})
	})

	When("the batch is superseded while in flight", func() {
		BeforeEach(func() {
			files = []FileInput{fileInput("a.png")}
			extractor.responses["a.png"] = []llm.ExtractedItem{extractedItem("Widget", "W-001")}
			// A newer generation appears while the extraction call is running.
			extractor.onExtract = func() { ws.BeginBatch() }
		})

		It("should return the stale batch error", func() {
			Expect(err).To(MatchError(common.ErrStaleBatch))
		})

		It("should not install the stale items", func() {
			Expect(ws.Items()).To(BeEmpty())
		})
	})

	When("a superseded batch fails every file with cancellation", func() {
		BeforeEach(func() {
			files = []FileInput{fileInput("a.png"), fileInput("b.png")}
			extractor.errs["a.png"] = context.Canceled
			extractor.errs["b.png"] = context.Canceled
			extractor.onExtract = func() { ws.BeginBatch() }
		})

		It("should classify it as stale, not as all-failed", func() {
			Expect(err).To(MatchError(common.ErrStaleBatch))
			Expect(err).NotTo(MatchError(common.ErrAllExtractionsFailed))
		})
	})

	When("the extraction request is built", func() {
		BeforeEach(func() {
			ws.SetNomenclature(nomenclature.Parse("Name,SKU\nWidget,W-001\n", nil))
			files = []FileInput{fileInput("a.png")}
			extractor.responses["a.png"] = []llm.ExtractedItem{extractedItem("Widget", "W-001")}
		})

		It("should carry the nomenclature text and base64 image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extractor.requests).To(HaveLen(1))
			req := extractor.requests[0]
			Expect(req.NomenclatureText).To(ContainSubstring("Widget"))
			Expect(req.ImageBase64).NotTo(BeEmpty())
			Expect(req.MimeType).To(Equal("image/png"))
		})
	})
})

var _ = Describe("Processor supersession", func() {
	var (
		extractor *mockExtractor
		ws        *invoice.Workspace
		proc      *Processor
	)

	BeforeEach(func() {
		extractor = newMockExtractor()
		ws = invoice.NewWorkspace(nil)
		proc = NewProcessor(extractor, ws, 2, nil)
	})

	It("should cancel the older run and keep the newer result", func() {
		extractor.blockOnCancel["old.png"] = true
		extractor.responses["new.png"] = []llm.ExtractedItem{extractedItem("Widget", "W-001")}

		firstErr := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			_, err := proc.Process(context.Background(), []FileInput{fileInput("old.png")})
			firstErr <- err
		}()

		Eventually(func() int {
			extractor.mu.Lock()
			defer extractor.mu.Unlock()
			return len(extractor.requests)
		}).Should(Equal(1))

		res, err := proc.Process(context.Background(), []FileInput{fileInput("new.png")})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(1))

		Expect(<-firstErr).To(MatchError(common.ErrStaleBatch))
		Expect(ws.Items()).To(HaveLen(1))
		Expect(ws.Items()[0].InvoiceFileName).To(Equal("new.png"))
	})
})
