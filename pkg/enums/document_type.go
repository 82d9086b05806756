package enums

import "slices"

type DocumentType string

const (
	DocumentInvoice     DocumentType = "invoice"
	DocumentPackingSlip DocumentType = "packing_slip"
	DocumentCreditNote  DocumentType = "credit_note"
)

var validDocumentTypes = []DocumentType{
	DocumentInvoice,
	DocumentPackingSlip,
	DocumentCreditNote,
}

func (d DocumentType) String() string {
	return string(d)
}

func (d DocumentType) IsValid() bool { return slices.Contains(validDocumentTypes, d) }

func ParseDocumentType(value string) (DocumentType, error) {
	return parse(validDocumentTypes, "document type", value)
}
