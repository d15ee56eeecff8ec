// Package migrations embeds the SQL schema files applied by the migrate
// manager.
package migrations

import "embed"

//go:embed sql
var FS embed.FS

// Dir is the embedded directory holding up/down migration files.
const Dir = "sql"
