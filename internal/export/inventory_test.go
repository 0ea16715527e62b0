package export

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/invoiceai/invoice-parser/internal/invoice"
	"github.com/invoiceai/invoice-parser/internal/llm"
	"github.com/invoiceai/invoice-parser/internal/nomenclature"
)

func readSheet(out []byte) [][]string {
	f, err := excelize.OpenReader(bytes.NewReader(out))
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	rows, err := f.GetRows("Processed Inventory")
	Expect(err).NotTo(HaveOccurred())
	return rows
}

var _ = Describe("BuildInventoryUpdateXLSX", func() {
	var table *nomenclature.Table

	BeforeEach(func() {
		table = nomenclature.Parse("Name,SKU,Location\nWidget,W-001,A1\nGadget,G-002,B4\n", nil)
	})

	It("should accumulate received stock onto the matching row", func() {
		out, name, err := BuildInventoryUpdateXLSX(table, []invoice.LineItem{
			aggItem("a.png", "Widget", "Widgget", "W-001", 2, 20, 3.5, 7),
			aggItem("b.png", "Widget", "Widget 10pk", "W-001", 1, 10, 4.0, 4),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(MatchRegexp(`^Inventory_Update_\d{4}-\d{2}-\d{2}\.xlsx$`))

		rows := readSheet(out)
		Expect(rows[0]).To(Equal([]string{"Name", "SKU", "Location", "totalQuantity", "unitPrice", "unitOfMeasure"}))
		Expect(rows[1][0]).To(Equal("Widget"))
		Expect(rows[1][3]).To(Equal("30"))
	})

	It("should round-trip untouched nomenclature columns", func() {
		out, _, err := BuildInventoryUpdateXLSX(table, []invoice.LineItem{
			aggItem("a.png", "Widget", "Widgget", "W-001", 1, 1, 3.5, 3.5),
		})
		Expect(err).NotTo(HaveOccurred())

		rows := readSheet(out)
		Expect(rows[1][2]).To(Equal("A1"))
		Expect(rows[2][0]).To(Equal("Gadget"))
		Expect(rows[2][2]).To(Equal("B4"))
	})

	It("should append unmatched items below the nomenclature rows", func() {
		out, _, err := BuildInventoryUpdateXLSX(table, []invoice.LineItem{
			aggItem("a.png", llm.MatchUnknown, "Mystery item", llm.MatchUnknown, 1, 5, 2, 10),
		})
		Expect(err).NotTo(HaveOccurred())

		rows := readSheet(out)
		Expect(rows).To(HaveLen(4))
		Expect(rows[3][0]).To(Equal("Mystery item"))
		Expect(rows[3][1]).To(Equal(llm.MatchUnknown))
		Expect(rows[3][3]).To(Equal("5"))
	})

	It("should store accumulated stock as number cells", func() {
		out, _, err := BuildInventoryUpdateXLSX(table, []invoice.LineItem{
			aggItem("a.png", "Widget", "Widgget", "W-001", 2, 20, 3.5, 7),
		})
		Expect(err).NotTo(HaveOccurred())

		f, err := excelize.OpenReader(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		// totalQuantity (D) and unitPrice (E) on the touched Widget row.
		for _, cell := range []string{"D2", "E2"} {
			ct, err := f.GetCellType("Processed Inventory", cell)
			Expect(err).NotTo(HaveOccurred())
			Expect(ct).NotTo(Equal(excelize.CellTypeSharedString), cell)
			Expect(ct).NotTo(Equal(excelize.CellTypeInlineString), cell)
		}
	})

	It("should keep ragged row cells beyond the header width", func() {
		// Two headers extend to five columns; six cells overflow even the
		// extended width.
		ragged := nomenclature.Parse("Name,SKU\nWidget,W-001,a,b,c,leftover-note\n", nil)
		out, _, err := BuildInventoryUpdateXLSX(ragged, nil)
		Expect(err).NotTo(HaveOccurred())

		rows := readSheet(out)
		Expect(rows[1]).To(Equal([]string{"Widget", "W-001", "a", "b", "c", "leftover-note"}))
	})

	It("should fail without a sku column", func() {
		bad := nomenclature.Parse("Name,Location\nWidget,A1\n", nil)
		_, _, err := BuildInventoryUpdateXLSX(bad, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should fail without a nomenclature", func() {
		_, _, err := BuildInventoryUpdateXLSX(nil, nil)
		Expect(err).To(HaveOccurred())
	})
})
