package stock

import (
	"strings"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// VariantKey builds the composite stock key for a product selection. It is the
// only place keys are derived: '' for whole-product stock, "<size>" for
// size-only products and "<size>-<color>" for color/size products, lower-cased.
func VariantKey(schema enums.VariantSchema, size, color string) (string, error) {
	size = normalizePart(size)
	color = normalizePart(color)

	switch schema {
	case enums.VariantSchemaNone, "":
		return "", nil
	case enums.VariantSchemaSize:
		if size == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "size selection is required")
		}
		return size, nil
	case enums.VariantSchemaColorSize:
		if size == "" || color == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "size and color selection are required")
		}
		return size + "-" + color, nil
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown variant schema %q", schema)
	}
}

// NormalizeKey canonicalizes a caller-supplied key such as the
// ?variantId= query parameter.
func NormalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizePart(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), "_")
}
