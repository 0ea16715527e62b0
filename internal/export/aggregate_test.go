package export

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm"
)

func aggItem(file, name, originalName, sku string, qty, totalQty, unitPrice, totalPrice float64) invoice.LineItem {
	return invoice.LineItem{
		ID:                 file + "/" + sku + "/" + originalName,
		InvoiceFileName:    file,
		OriginalName:       originalName,
		MatchedProductName: name,
		SKU:                sku,
		Quantity:           qty,
		TotalQuantity:      totalQty,
		UnitOfMeasure:      "pcs",
		UnitPrice:          unitPrice,
		TotalPrice:         totalPrice,
	}
}

var _ = Describe("Aggregate", func() {
	When("the same sku appears across invoices", func() {
		var records []AggregatedRecord

		BeforeEach(func() {
			records = Aggregate([]invoice.LineItem{
				aggItem("a.png", "Widget", "Widgget", "W-001", 2, 20, 3.5, 7),
				aggItem("b.png", "Widget Pro", "Widget 10pk", "W-001", 1, 10, 4.0, 4),
				aggItem("a.png", "Gadget", "Gadget", "G-002", 1, 1, 9.99, 9.99),
			})
		})

		It("should produce one record per sku in first-appearance order", func() {
			Expect(records).To(HaveLen(2))
			Expect(records[0].SKU).To(Equal("W-001"))
			Expect(records[1].SKU).To(Equal("G-002"))
		})

		It("should sum the quantities and totals", func() {
			Expect(records[0].Quantity).To(Equal(3.0))
			Expect(records[0].TotalQuantity).To(Equal(30.0))
			Expect(records[0].TotalPrice).To(Equal(11.0))
		})

		It("should keep the first-occurrence name, unit and price", func() {
			Expect(records[0].MatchedProductName).To(Equal("Widget"))
			Expect(records[0].UnitOfMeasure).To(Equal("pcs"))
			Expect(records[0].UnitPrice).To(Equal(3.5))
		})

		It("should track the unit price spread", func() {
			Expect(records[0].MinUnitPrice).To(Equal(3.5))
			Expect(records[0].MaxUnitPrice).To(Equal(4.0))
		})

		It("should collect distinct source files in first-appearance order", func() {
			Expect(records[0].InvoiceFileNames).To(Equal([]string{"a.png", "b.png"}))
		})

		It("should collect distinct original names", func() {
			Expect(records[0].OriginalNames).To(Equal([]string{"Widgget", "Widget 10pk"}))
		})
	})

	When("items carry the UNKNOWN sentinel", func() {
		It("should exclude them from aggregation", func() {
			records := Aggregate([]invoice.LineItem{
				aggItem("a.png", llm.MatchUnknown, "Mystery item", llm.MatchUnknown, 1, 1, 5, 5),
				aggItem("a.png", "Widget", "Widget", "W-001", 1, 1, 3.5, 3.5),
			})
			Expect(records).To(HaveLen(1))
			Expect(records[0].SKU).To(Equal("W-001"))
		})
	})

	When("duplicate file names or original names repeat within a group", func() {
		It("should not list them twice", func() {
			records := Aggregate([]invoice.LineItem{
				aggItem("a.png", "Widget", "Widgget", "W-001", 1, 1, 3.5, 3.5),
				aggItem("a.png", "Widget", "Widgget", "W-001", 2, 2, 3.5, 7),
			})
			Expect(records[0].InvoiceFileNames).To(Equal([]string{"a.png"}))
			Expect(records[0].OriginalNames).To(Equal([]string{"Widgget"}))
		})
	})

	It("should sum fractional prices without float drift", func() {
		records := Aggregate([]invoice.LineItem{
			aggItem("a.png", "Widget", "Widget", "W-001", 0.1, 0.1, 1, 0.1),
			aggItem("b.png", "Widget", "Widget", "W-001", 0.2, 0.2, 1, 0.2),
		})
		Expect(records[0].Quantity).To(Equal(0.3))
		Expect(records[0].TotalPrice).To(Equal(0.3))
	})

	It("should return nothing for an empty working set", func() {
		Expect(Aggregate(nil)).To(BeEmpty())
	})
})

var _ = Describe("BuildAggregatedXLSX", func() {
	var (
		records []AggregatedRecord
		out     []byte
		name    string
		err     error
	)

	BeforeEach(func() {
		records = Aggregate([]invoice.LineItem{
			aggItem("a.png", "Widget", "Widgget", "W-001", 2, 20, 3.5, 7),
			aggItem("b.png", "Widget", "Widget 10pk", "W-001", 1, 10, 3.5, 3.5),
		})
	})

	JustBeforeEach(func() {
		out, name, err = BuildAggregatedXLSX(records, DefaultColumns())
	})

	It("should produce a date-stamped file name", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(MatchRegexp(`^Aggregated_Inventory_\d{4}-\d{2}-\d{2}\.xlsx$`))
	})

	It("should write one sheet with header and data rows", func() {
		Expect(err).NotTo(HaveOccurred())
		f, err := excelize.OpenReader(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{"Aggregated Inventory"}))
		rows, err := f.GetRows("Aggregated Inventory")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0][0]).To(Equal("Invoice File"))
		Expect(rows[1][0]).To(Equal("a.png; b.png"))
		Expect(rows[1][3]).To(Equal("W-001"))
	})

	It("should store quantities and prices as number cells", func() {
		Expect(err).NotTo(HaveOccurred())
		f, err := excelize.OpenReader(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		// Quantity (E), Total Quantity (F), Unit Price (H), Total Price (I).
		for _, cell := range []string{"E2", "F2", "H2", "I2"} {
			ct, err := f.GetCellType("Aggregated Inventory", cell)
			Expect(err).NotTo(HaveOccurred())
			Expect(ct).NotTo(Equal(excelize.CellTypeSharedString), cell)
			Expect(ct).NotTo(Equal(excelize.CellTypeInlineString), cell)
		}

		ct, err := f.GetCellType("Aggregated Inventory", "D2")
		Expect(err).NotTo(HaveOccurred())
		Expect(ct).To(Equal(excelize.CellTypeSharedString))
	})
})
