package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

// Service wraps the exporters with logging and the recoverable-failure
// contract: any failure (including a panic inside a spreadsheet encoder)
// degrades to an ExportError and leaves the in-memory working set untouched.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// CSV produces the flat per-line export over the given items.
func (s *Service) CSV(items []invoice.LineItem, cols []Column) (out []byte, err error) {
	defer s.recoverExport("csv", &err)
	start := time.Now()

	out = WriteCSV(items, cols)

	s.logger.Info("export.csv.ok",
		"rows", len(items),
		"bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// AggregatedXLSX produces the SKU-rollup workbook plus its date-stamped file
// name.
func (s *Service) AggregatedXLSX(items []invoice.LineItem, cols []Column) (out []byte, name string, err error) {
	defer s.recoverExport("xlsx", &err)
	start := time.Now()

	records := Aggregate(items)
	out, name, buildErr := BuildAggregatedXLSX(records, cols)
	if buildErr != nil {
		s.logger.Error("export.xlsx.failed", "error", buildErr)
		return nil, "", common.NewExportError(buildErr)
	}

	s.logger.Info("export.xlsx.ok",
		"groups", len(records),
		"bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, name, nil
}

// InventoryUpdateXLSX produces the nomenclature round-trip workbook.
func (s *Service) InventoryUpdateXLSX(table *nomenclature.Table, items []invoice.LineItem) (out []byte, name string, err error) {
	defer s.recoverExport("inventory", &err)
	start := time.Now()

	out, name, buildErr := BuildInventoryUpdateXLSX(table, items)
	if buildErr != nil {
		s.logger.Error("export.inventory.failed", "error", buildErr)
		return nil, "", common.NewExportError(buildErr)
	}

	s.logger.Info("export.inventory.ok",
		"rows", len(items),
		"bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, name, nil
}

func (s *Service) recoverExport(kind string, err *error) {
	if r := recover(); r != nil {
		s.logger.Error("export.panic", "kind", kind, "panic", r)
		*err = common.NewExportError(fmt.Errorf("panic: %v", r))
	}
}
