package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/invoiceai/invoice-parser/internal/batch"
	"github.com/invoiceai/invoice-parser/internal/export"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/store"
)

// Server exposes the extraction pipeline over HTTP: nomenclature upload,
// batch processing, in-place edits and the two export formats.
type Server struct {
	ws       *invoice.Workspace
	proc     *batch.Processor
	exporter *export.Service
	store    store.Store
	logger   *slog.Logger
	engine   *gin.Engine
}

func New(ws *invoice.Workspace, proc *batch.Processor, exporter *export.Service, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ws:       ws,
		proc:     proc,
		exporter: exporter,
		store:    st,
		logger:   logger,
		engine:   gin.Default(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.POST("/nomenclature", s.uploadNomenclature)
	api.GET("/nomenclature", s.loadNomenclature)

	api.POST("/invoices/process", s.processInvoices)
	api.GET("/items", s.listItems)
	api.PATCH("/items/:id", s.editItem)
	api.POST("/reset", s.reset)

	api.GET("/export/csv", s.exportCSV)
	api.GET("/export/xlsx", s.exportAggregatedXLSX)
	api.GET("/export/inventory", s.exportInventoryXLSX)
	api.GET("/export/columns", s.getExportColumns)
	api.PUT("/export/columns", s.putExportColumns)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Engine returns the underlying router, used by tests and by the main
// entrypoint to attach the listener.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
