package export

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/invoiceai/invoice-parser/internal/invoice"
)

func TestExport(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Export Suite")
}

func lineItem(id string) invoice.LineItem {
	return invoice.LineItem{
		ID:                 id,
		InvoiceFileName:    "inv-a.png",
		OriginalName:       "Widgget 10x",
		MatchedProductName: "Widget",
		SKU:                "W-001",
		Quantity:           2,
		TotalQuantity:      20,
		UnitOfMeasure:      "pcs",
		UnitPrice:          3.5,
		TotalPrice:         7,
	}
}

var _ = Describe("WriteCSV", func() {
	It("should render the default nine-column layout", func() {
		out := WriteCSV([]invoice.LineItem{lineItem("1")}, DefaultColumns())
		lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(Equal(`"Invoice File","Matched Product Name","Original Name","SKU","Quantity","Total Quantity","Unit of Measure","Unit Price","Total Price"`))
		Expect(lines[1]).To(Equal(`"inv-a.png","Widget","Widgget 10x","W-001","2","20","pcs","3.5","7"`))
	})

	It("should be idempotent across repeated exports", func() {
		items := []invoice.LineItem{lineItem("1"), lineItem("2")}
		first := WriteCSV(items, DefaultColumns())
		second := WriteCSV(items, DefaultColumns())
		Expect(second).To(Equal(first))
	})

	It("should double internal quotes", func() {
		it := lineItem("1")
		it.OriginalName = `Widget "XL", boxed`
		out := WriteCSV([]invoice.LineItem{it}, DefaultColumns())
		Expect(string(out)).To(ContainSubstring(`"Widget ""XL"", boxed"`))
	})

	It("should terminate every row with a bare newline", func() {
		out := WriteCSV([]invoice.LineItem{lineItem("1")}, DefaultColumns())
		Expect(string(out)).To(HaveSuffix("\n"))
		Expect(string(out)).NotTo(ContainSubstring("\r"))
	})

	When("columns are disabled and reordered", func() {
		var cols []Column

		BeforeEach(func() {
			cols = DefaultColumns()
			for i := range cols {
				switch cols[i].Key {
				case KeySKU:
					cols[i].Enabled = false
				case KeyOriginalName:
					cols[i].Order = 100
				}
			}
		})

		It("should omit disabled columns entirely", func() {
			out := WriteCSV([]invoice.LineItem{lineItem("1")}, cols)
			Expect(string(out)).NotTo(ContainSubstring("SKU"))
			Expect(string(out)).NotTo(ContainSubstring("W-001"))
		})

		It("should respect the configured order", func() {
			out := WriteCSV([]invoice.LineItem{lineItem("1")}, cols)
			header := strings.SplitN(string(out), "\n", 2)[0]
			Expect(header).To(HaveSuffix(`"Original Name"`))
		})
	})

	When("a column header is renamed", func() {
		It("should use the configured header text", func() {
			cols := DefaultColumns()
			cols[0].Header = "Source Document"
			out := WriteCSV([]invoice.LineItem{lineItem("1")}, cols)
			Expect(string(out)).To(ContainSubstring(`"Source Document"`))
		})
	})

	It("should render whole numbers without trailing zeros", func() {
		it := lineItem("1")
		it.UnitPrice = 10
		it.TotalPrice = 20
		out := WriteCSV([]invoice.LineItem{it}, DefaultColumns())
		Expect(string(out)).To(ContainSubstring(`"10","20"`))
	})
})

var _ = Describe("ActiveColumns", func() {
	It("should keep first-seen order for equal Order values", func() {
		cols := []Column{
			{Key: "a", Enabled: true, Order: 1},
			{Key: "b", Enabled: true, Order: 1},
			{Key: "c", Enabled: true, Order: 0},
		}
		active := ActiveColumns(cols)
		Expect(active[0].Key).To(Equal("c"))
		Expect(active[1].Key).To(Equal("a"))
		Expect(active[2].Key).To(Equal("b"))
	})
})

var _ = Describe("NormalizeOrder", func() {
	It("should rewrite orders to a dense sequence", func() {
		cols := []Column{
			{Key: "a", Order: 100},
			{Key: "b", Order: 2},
			{Key: "c", Order: 50},
		}
		out := NormalizeOrder(cols)
		Expect(out[0]).To(Equal(Column{Key: "b", Order: 0}))
		Expect(out[1]).To(Equal(Column{Key: "c", Order: 1}))
		Expect(out[2]).To(Equal(Column{Key: "a", Order: 2}))
	})
})
