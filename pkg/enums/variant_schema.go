package enums

import "slices"

// VariantSchema is decided once per product and fixes which selection
// attributes make up a variant key.
type VariantSchema string

const (
	VariantSchemaNone      VariantSchema = "none"
	VariantSchemaSize      VariantSchema = "size"
	VariantSchemaColorSize VariantSchema = "color_size"
)

var validVariantSchemas = []VariantSchema{
	VariantSchemaNone,
	VariantSchemaSize,
	VariantSchemaColorSize,
}

func (v VariantSchema) String() string {
	return string(v)
}

func (v VariantSchema) IsValid() bool { return slices.Contains(validVariantSchemas, v) }

// RequiresSelection reports whether callers must name a variant.
func (v VariantSchema) RequiresSelection() bool {
	return v == VariantSchemaSize || v == VariantSchemaColorSize
}

func ParseVariantSchema(value string) (VariantSchema, error) {
	return parse(validVariantSchemas, "variant schema", value)
}
