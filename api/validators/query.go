package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// QueryString returns a trimmed query parameter, rejecting values longer
// than maxLen.
func QueryString(r *http.Request, key string, maxLen int) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if maxLen > 0 && len(raw) > maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter too long").WithDetails(map[string]any{"field": key, "max": maxLen})
	}
	return raw, nil
}

// QueryBool treats "true" and "1" as set.
func QueryBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "true", "1":
		return true
	}
	return false
}
