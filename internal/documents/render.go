package documents

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var documentTemplate = template.Must(template.ParseFS(templateFS, "templates/document.html.tmpl"))

var titles = map[enums.DocumentType]string{
	enums.DocumentInvoice:     "Invoice",
	enums.DocumentPackingSlip: "Packing Slip",
	enums.DocumentCreditNote:  "Credit Note",
}

type renderLine struct {
	Name      string
	Variant   string
	Quantity  int
	UnitPrice string
	LineTotal string
	Status    string
}

type renderView struct {
	Title        string
	TitleLower   string
	Number       string
	OrderID      string
	IssuedAt     string
	Superseding  bool
	Address      types.Address
	Incoterms    string
	ShowPrices   bool
	Lines        []renderLine
	Currency     string
	Subtotal     string
	Shipping     string
	Tax          string
	Total        string
	AmountPaid   string
	Remaining    string
	Refunded     string
	HasRefunds   bool
	CreditAmount string
	Extras       map[string]string
}

// render lays out a document. Every total comes from the document row,
// which was copied from the order snapshot; line amounts are the stored
// per-line subtotals and are never summed here.
func render(doc *models.Document, order *models.Order, superseding bool) ([]byte, error) {
	title := titles[doc.DocumentType]
	view := renderView{
		Title:       title,
		TitleLower:  strings.ToLower(title),
		Number:      doc.Number,
		OrderID:     order.ID.String(),
		IssuedAt:    doc.CreatedAt.UTC().Format(time.RFC1123),
		Superseding: superseding,
		Address:     order.ShippingAddress,
		ShowPrices:  doc.DocumentType != enums.DocumentPackingSlip,
		Currency:    doc.Currency,
		Subtotal:    pricing.Format(doc.SubtotalCents),
		Shipping:    pricing.Format(doc.ShippingCents),
		Tax:         pricing.Format(doc.TaxCents),
		Total:       pricing.Format(doc.TotalCents),
		AmountPaid:  pricing.Format(doc.AmountPaidCents),
		Remaining:   pricing.Format(doc.RemainingBalanceCents),
		Refunded:    pricing.Format(doc.RefundedCents),
		HasRefunds:  doc.RefundedCents > 0,
		Extras:      doc.Extras,
	}
	if order.Incoterms != nil {
		view.Incoterms = *order.Incoterms
	}
	if doc.DocumentType == enums.DocumentCreditNote {
		view.CreditAmount = pricing.Format(doc.RefundAmountCents)
	}
	for _, item := range order.Items {
		view.Lines = append(view.Lines, renderLine{
			Name:      item.ProductName,
			Variant:   variantLabel(item),
			Quantity:  item.Quantity,
			UnitPrice: pricing.Format(item.UnitPriceCents),
			LineTotal: pricing.Format(item.LineSubtotalCents),
			Status:    item.Status.String(),
		})
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func variantLabel(item models.OrderItem) string {
	parts := make([]string, 0, 2)
	if item.Color != nil {
		parts = append(parts, *item.Color)
	}
	if item.Size != nil {
		parts = append(parts, *item.Size)
	}
	return strings.Join(parts, " / ")
}
