package enums

import "fmt"

// parse matches value exactly against set. Enum values are lowercase on the
// wire and in Postgres, so no case folding happens here.
func parse[T ~string](set []T, kind, value string) (T, error) {
	for _, candidate := range set {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
