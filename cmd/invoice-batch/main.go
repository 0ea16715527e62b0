package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/invoiceai/invoice-parser/internal/batch"
	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/export"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm/openai"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

// invoice-batch processes a directory of invoice images against a
// nomenclature file and writes the exports to disk, without the HTTP server.
func main() {
	nomenclaturePath := flag.String("nomenclature", "", "path to the nomenclature CSV/XLSX file (optional)")
	invoiceDir := flag.String("invoices", "", "directory with invoice images to process")
	outDir := flag.String("out", ".", "directory to write exports into")
	withCSV := flag.Bool("csv", true, "write the per-item CSV export")
	withXLSX := flag.Bool("xlsx", true, "write the aggregated XLSX export")
	withInventory := flag.Bool("inventory", false, "write the inventory update XLSX (requires a nomenclature)")
	flag.Parse()

	if *invoiceDir == "" {
		printError("missing required flag -invoices")
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err == nil {
		slog.Debug("batch.dotenv.loaded")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("invalid configuration: %v", err)
		os.Exit(1)
	}

	ws := invoice.NewWorkspace(logger)
	if *nomenclaturePath != "" {
		data, err := os.ReadFile(*nomenclaturePath)
		if err != nil {
			printError("read nomenclature: %v", err)
			os.Exit(1)
		}
		raw, err := nomenclature.ToCSVText(data, *nomenclaturePath)
		if err != nil {
			printError("parse nomenclature: %v", err)
			os.Exit(1)
		}
		table := nomenclature.Parse(raw, logger)
		if !table.HasProducts() {
			fmt.Fprintln(os.Stderr, "warning: no products recognized in nomenclature, matching disabled")
		}
		ws.SetNomenclature(table)
	}

	files, err := collectInvoiceFiles(*invoiceDir)
	if err != nil {
		printError("collect invoices: %v", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		printError("no invoice images found in %s", *invoiceDir)
		os.Exit(1)
	}

	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxImageMB:  cfg.LLM.MaxImageMB,
	}, logger)
	proc := batch.NewProcessor(extractor, ws, cfg.Batch.MaxParallel, logger)

	res, err := proc.Process(context.Background(), files)
	if err != nil {
		if errors.Is(err, common.ErrAllExtractionsFailed) {
			for _, f := range res.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", f.File, f.Cause)
			}
		}
		printError("batch failed: %v", err)
		os.Exit(1)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", f.File, f.Cause)
	}
	fmt.Printf("processed %d files, %d items, %d failures\n", len(files), len(res.Items), len(res.Failures))

	exporter := export.NewService(logger)
	cols := export.DefaultColumns()

	if *withCSV {
		out, err := exporter.CSV(res.Items, cols)
		if err != nil {
			printError("csv export: %v", err)
			os.Exit(1)
		}
		path := filepath.Join(*outDir, "invoice_items.csv")
		if err := os.WriteFile(path, out, 0644); err != nil {
			printError("write %s: %v", path, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
	}

	if *withXLSX {
		out, name, err := exporter.AggregatedXLSX(res.Items, cols)
		if err != nil {
			printError("xlsx export: %v", err)
			os.Exit(1)
		}
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, out, 0644); err != nil {
			printError("write %s: %v", path, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
	}

	if *withInventory {
		table := ws.Nomenclature()
		if table == nil || !table.HasProducts() {
			printError("inventory export requires a nomenclature with products")
			os.Exit(1)
		}
		out, name, err := exporter.InventoryUpdateXLSX(table, res.Items)
		if err != nil {
			printError("inventory export: %v", err)
			os.Exit(1)
		}
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, out, 0644); err != nil {
			printError("write %s: %v", path, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
	}
}

var invoiceExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".pdf":  true,
}

func collectInvoiceFiles(dir string) ([]batch.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []batch.FileInput
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !invoiceExtensions[ext] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		mimeType := mime.TypeByExtension(ext)
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, batch.FileInput{
			Name:     e.Name(),
			MimeType: mimeType,
			Data:     data,
		})
	}
	return files, nil
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
