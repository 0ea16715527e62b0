package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/invoiceai/invoice-parser/internal/batch"
	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/export"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm/openai"
	"github.com/invoiceai/invoice-parser/internal/server"
	"github.com/invoiceai/invoice-parser/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("main.dotenv.skipped", "error", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("main.config.invalid", "error", err)
		os.Exit(1)
	}

	st, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("main.store.open_failed", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ws := invoice.NewWorkspace(logger)
	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxImageMB:  cfg.LLM.MaxImageMB,
	}, logger)
	proc := batch.NewProcessor(extractor, ws, cfg.Batch.MaxParallel, logger)
	exporter := export.NewService(logger)

	srv := server.New(ws, proc, exporter, st, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Engine(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("main.http.listen", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("main.http.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("main.shutdown.start")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main.shutdown.failed", "error", err)
		os.Exit(1)
	}
	logger.Info("main.shutdown.ok")
}
