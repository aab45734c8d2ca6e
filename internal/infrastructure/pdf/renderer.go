package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/bloomwire/ordercore/internal/domain/invoice"
)

// Renderer renders persisted invoices as PDF documents.
type Renderer struct {
	sellerName    string
	sellerAddress string
}

func NewRenderer(sellerName, sellerAddress string) *Renderer {
	return &Renderer{sellerName: sellerName, sellerAddress: sellerAddress}
}

func (r *Renderer) Render(inv *invoice.Invoice) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Invoice "+inv.Number, false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.Cell(0, 10, "INVOICE "+inv.Number)
	doc.Ln(14)

	doc.SetFont("Helvetica", "", 10)
	doc.Cell(0, 5, "Seller: "+r.sellerName)
	doc.Ln(5)
	if r.sellerAddress != "" {
		doc.Cell(0, 5, r.sellerAddress)
		doc.Ln(5)
	}
	doc.Ln(3)
	doc.Cell(0, 5, "Bill to: "+inv.BuyerName)
	doc.Ln(5)
	if inv.BuyerTaxID != "" {
		doc.Cell(0, 5, "Tax ID: "+inv.BuyerTaxID)
		doc.Ln(5)
	}
	doc.Cell(0, 5, "Issued: "+inv.IssuedAt.Format("2006-01-02"))
	doc.Ln(10)

	// Line items
	doc.SetFont("Helvetica", "B", 9)
	doc.CellFormat(70, 7, "Description", "1", 0, "L", false, 0, "")
	doc.CellFormat(15, 7, "Qty", "1", 0, "R", false, 0, "")
	doc.CellFormat(25, 7, "Unit", "1", 0, "R", false, 0, "")
	doc.CellFormat(27, 7, "Net", "1", 0, "R", false, 0, "")
	doc.CellFormat(25, 7, "VAT", "1", 0, "R", false, 0, "")
	doc.CellFormat(28, 7, "Total", "1", 1, "R", false, 0, "")

	doc.SetFont("Helvetica", "", 9)
	for _, it := range inv.Items {
		doc.CellFormat(70, 6, it.Description, "1", 0, "L", false, 0, "")
		doc.CellFormat(15, 6, fmt.Sprintf("%d", it.Quantity), "1", 0, "R", false, 0, "")
		doc.CellFormat(25, 6, it.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(27, 6, it.Subtotal.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(25, 6, it.VAT.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(28, 6, it.Total.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	doc.Ln(4)
	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(137, 6, "", "", 0, "", false, 0, "")
	doc.CellFormat(25, 6, "Net", "", 0, "R", false, 0, "")
	doc.CellFormat(28, 6, inv.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	doc.CellFormat(137, 6, "", "", 0, "", false, 0, "")
	doc.CellFormat(25, 6, "VAT", "", 0, "R", false, 0, "")
	doc.CellFormat(28, 6, inv.VAT.StringFixed(2), "", 1, "R", false, 0, "")
	doc.CellFormat(137, 6, "", "", 0, "", false, 0, "")
	doc.CellFormat(25, 6, "Total", "", 0, "R", false, 0, "")
	doc.CellFormat(28, 6, inv.Total.StringFixed(2), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render invoice %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}
