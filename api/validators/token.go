package validators

import (
	"encoding/hex"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// linkTokenLen is the hex length of a 256-bit balance link token.
const linkTokenLen = 64

// LinkToken reads the ?token= balance link secret. An absent token returns
// "" so the caller can fall back to the bearer identity.
func LinkToken(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return "", nil
	}
	if len(token) != linkTokenLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "malformed link token")
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "malformed link token")
	}
	return strings.ToLower(token), nil
}
