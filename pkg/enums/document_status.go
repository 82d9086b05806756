package enums

import "slices"

type DocumentStatus string

const (
	DocumentActive     DocumentStatus = "active"
	DocumentSuperseded DocumentStatus = "superseded"
)

var validDocumentStatuses = []DocumentStatus{
	DocumentActive,
	DocumentSuperseded,
}

func (d DocumentStatus) String() string {
	return string(d)
}

func (d DocumentStatus) IsValid() bool { return slices.Contains(validDocumentStatuses, d) }

func ParseDocumentStatus(value string) (DocumentStatus, error) {
	return parse(validDocumentStatuses, "document status", value)
}
