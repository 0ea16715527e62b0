package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invoiceai/invoice-parser/internal/batch"
	"github.com/invoiceai/invoice-parser/internal/common"
	"github.com/invoiceai/invoice-parser/internal/export"
	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// uploadNomenclature accepts a CSV or XLSX product list, installs it as the
// active nomenclature and persists the raw text per warehouse. A file that
// parses but yields no products is not an error: the response carries a
// warning and extraction simply runs without product matching.
func (s *Server) uploadNomenclature(c *gin.Context) {
	warehouseID := c.DefaultPostForm("warehouse_id", "default")

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing nomenclature file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, err := nomenclature.ToCSVText(data, fh.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unreadable nomenclature file: %v", err)})
		return
	}

	table := nomenclature.Parse(raw, s.logger)
	s.ws.SetNomenclature(table)

	if err := s.store.SaveNomenclature(warehouseID, raw); err != nil {
		s.logger.Error("store.nomenclature.save_failed", "warehouse_id", warehouseID, "error", err)
	}

	resp := gin.H{
		"warehouseId": warehouseID,
		"products":    len(table.Products),
	}
	if !table.HasProducts() {
		resp["warning"] = "no products recognized; invoices will be processed without product matching"
	}
	c.JSON(http.StatusOK, resp)
}

// loadNomenclature restores a previously saved nomenclature for a warehouse
// and makes it the active one.
func (s *Server) loadNomenclature(c *gin.Context) {
	warehouseID := c.DefaultQuery("warehouse_id", "default")

	raw, err := s.store.GetNomenclature(warehouseID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no nomenclature saved for warehouse"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	table := nomenclature.Parse(raw, s.logger)
	s.ws.SetNomenclature(table)
	c.JSON(http.StatusOK, gin.H{
		"warehouseId": warehouseID,
		"products":    len(table.Products),
	})
}

// processInvoices runs a batch of uploaded invoice images through extraction.
// The batch settles even when some files fail; only an all-failed batch or a
// stale result is reported as an error.
func (s *Server) processInvoices(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fhs := form.File["files"]
	if len(fhs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no invoice files uploaded"})
		return
	}

	files := make([]batch.FileInput, 0, len(fhs))
	for _, fh := range fhs {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		files = append(files, batch.FileInput{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	res, err := s.proc.Process(c.Request.Context(), files)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAllExtractionsFailed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    "all invoices failed to process",
				"failures": res.Failures,
			})
		case errors.Is(err, common.ErrStaleBatch):
			c.JSON(http.StatusConflict, gin.H{"error": "batch superseded by a newer one"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    res.Items,
		"failures": res.Failures,
		"groups":   invoice.GroupByFile(res.Items),
	})
}

func (s *Server) listItems(c *gin.Context) {
	items := s.ws.Items()
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"groups": invoice.GroupByFile(items),
	})
}

type editItemRequest struct {
	// Op selects the edit: "patch" applies Fields, "product" re-matches the
	// item against the nomenclature, "numeric" parses a typed-in number with
	// comma tolerance.
	Op          string             `json:"op"`
	Fields      invoice.FieldPatch `json:"fields"`
	ProductName string             `json:"productName"`
	Field       string             `json:"field"`
	Value       string             `json:"value"`
}

func (s *Server) editItem(c *gin.Context) {
	id := c.Param("id")

	var req editItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Op {
	case "patch":
		s.ws.UpdateItem(id, req.Fields)
	case "product":
		s.ws.ChangeMatchedProduct(id, req.ProductName)
	case "numeric":
		s.ws.SetNumericField(id, req.Field, req.Value)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown op %q", req.Op)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": s.ws.Items()})
}

func (s *Server) reset(c *gin.Context) {
	s.ws.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) exportCSV(c *gin.Context) {
	items := s.ws.Items()
	if file := c.Query("file"); file != "" {
		items = s.ws.ItemsForFile(file)
	}
	if len(items) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no items to export"})
		return
	}

	cols, err := s.store.GetExportColumns()
	if err != nil {
		cols = export.DefaultColumns()
	}
	out, err := s.exporter.CSV(items, cols)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	name := fmt.Sprintf("invoice_items_%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
}

func (s *Server) exportAggregatedXLSX(c *gin.Context) {
	items := s.ws.Items()
	if len(items) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no items to export"})
		return
	}

	cols, err := s.store.GetExportColumns()
	if err != nil {
		cols = export.DefaultColumns()
	}
	out, name, err := s.exporter.AggregatedXLSX(items, cols)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, out)
}

func (s *Server) exportInventoryXLSX(c *gin.Context) {
	table := s.ws.Nomenclature()
	if table == nil || !table.HasProducts() {
		c.JSON(http.StatusConflict, gin.H{"error": "no nomenclature loaded"})
		return
	}
	items := s.ws.Items()
	if len(items) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no items to export"})
		return
	}

	out, name, err := s.exporter.InventoryUpdateXLSX(table, items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, out)
}

func (s *Server) getExportColumns(c *gin.Context) {
	cols, err := s.store.GetExportColumns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}

func (s *Server) putExportColumns(c *gin.Context) {
	var req struct {
		Columns []export.Column `json:"columns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Columns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "columns must not be empty"})
		return
	}

	cols := export.NormalizeOrder(req.Columns)
	if err := s.store.SaveExportColumns(cols); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}
