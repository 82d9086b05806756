package models

import "github.com/google/uuid"

// ensureID assigns a v4 identifier when the caller left it empty. The
// Postgres columns also default to gen_random_uuid(); setting it here keeps
// ids known before insert and lets sqlite-backed tests behave the same.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
