package batch

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm"
)

// FileInput is one uploaded invoice document.
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// FileFailure records one file that could not be processed.
type FileFailure struct {
	File  string `json:"file"`
	Cause string `json:"cause"`
}

// Result is the settled outcome of one batch. A batch with both Items and
// Failures is a partial failure: supported and expected, not an exception
// path.
type Result struct {
	Items      []invoice.LineItem `json:"items"`
	Failures   []FileFailure      `json:"failures"`
	Generation uint64             `json:"-"`
}

// Processor fans a batch of uploaded files out to the extraction service,
// normalizes the results, and installs them into the workspace. Each file is
// an independent task; the batch settles only after every task finished.
type Processor struct {
	extractor   llm.LineItemExtractor
	ws          *invoice.Workspace
	maxParallel int
	logger      *slog.Logger

	mu         sync.Mutex
	cancelPrev context.CancelFunc
}

func NewProcessor(extractor llm.LineItemExtractor, ws *invoice.Workspace, maxParallel int, logger *slog.Logger) *Processor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		extractor:   extractor,
		ws:          ws,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

// Process runs one batch: encode, extract and normalize every file, then
// replace the working set with the combined result. Per-file failures are
// collected, never propagated mid-batch; only a batch where every file failed
// returns common.ErrAllExtractionsFailed. A batch superseded while in flight
// returns common.ErrStaleBatch and leaves the newer working set untouched.
func (p *Processor) Process(ctx context.Context, files []FileInput) (*Result, error) {
	start := time.Now()

	// Supersede any still-running batch so its HTTP calls stop early. Its
	// generation token already guarantees its results are discarded. The
	// generation take and the cancel registration share one critical section:
	// an older submission must never cancel a newer batch's context.
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	gen := p.ws.BeginBatch()
	if p.cancelPrev != nil {
		p.cancelPrev()
	}
	p.cancelPrev = cancel
	p.mu.Unlock()

	nomenclatureText := p.ws.NomenclatureText()

	p.logger.Info("batch.start", "files", len(files), "generation", gen)

	type slot struct {
		items []invoice.LineItem
		err   error
	}
	slots := make([]slot, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallel)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			items, err := p.processFile(gctx, f, nomenclatureText)
			if err != nil {
				// Collected, not returned: one file must not abort siblings.
				slots[i].err = common.NewExtractionError(f.Name, err)
				return nil
			}
			slots[i].items = items
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Generation: gen}
	for i := range slots {
		if slots[i].err != nil {
			p.logger.Error("batch.file.failed", "file", files[i].Name, "error", slots[i].err)
			res.Failures = append(res.Failures, FileFailure{
				File:  files[i].Name,
				Cause: slots[i].err.Error(),
			})
			continue
		}
		res.Items = append(res.Items, slots[i].items...)
	}

	if len(files) > 0 && len(res.Failures) == len(files) {
		// A superseded batch dies with context.Canceled on every file; that
		// is the stale condition, not an extraction failure.
		if p.ws.Generation() != gen {
			p.logger.Warn("batch.superseded", "generation", gen, "files", len(files))
			return nil, common.ErrStaleBatch
		}
		p.logger.Error("batch.all_failed",
			"files", len(files),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, common.ErrAllExtractionsFailed
	}

	if !p.ws.ReplaceItems(gen, res.Items) {
		return nil, common.ErrStaleBatch
	}

	p.logger.Info("batch.ok",
		"files", len(files),
		"failed", len(res.Failures),
		"items", len(res.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) processFile(ctx context.Context, f FileInput, nomenclatureText string) ([]invoice.LineItem, error) {
	req := llm.ExtractRequest{
		FileName:         f.Name,
		MimeType:         f.MimeType,
		ImageBase64:      base64.StdEncoding.EncodeToString(f.Data),
		NomenclatureText: nomenclatureText,
	}
	extracted, _, err := p.extractor.ExtractLineItems(ctx, req)
	if err != nil {
		return nil, err
	}
	return invoice.NormalizeItems(extracted, f.Name), nil
}
