package migrations

import "embed"

// FS holds the SQL migrations so binaries can migrate without the source tree.
//
//go:embed *.sql
var FS embed.FS
